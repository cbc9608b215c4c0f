package domain

import "time"

// Species is the kind of animal a pet is.
type Species string

const (
	SpeciesDog    Species = "dog"
	SpeciesCat    Species = "cat"
	SpeciesRabbit Species = "rabbit"
	SpeciesBird   Species = "bird"
	SpeciesOther  Species = "other"
)

// Pet belongs to exactly one owner.
type Pet struct {
	ID        int64
	OwnerID   int64
	Name      string
	Species   Species
	Breed     string
	AgeYears  int
	Notes     string
	CreatedAt time.Time
}

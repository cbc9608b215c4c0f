package domain

import (
	"strings"
	"time"

	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// Field limits for owner profiles.
const (
	MaxFullNameLength = 255
	MaxPhoneLength    = 32
	MaxAddressLength  = 500
)

// Owner is a pet owner; customers are scoped to exactly one owner.
type Owner struct {
	ID               int64
	FullName         string
	Email            string
	Phone            string
	Address          string
	EmergencyContact string
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}

// OwnerChanges lists the profile fields a customer may edit. Nil fields
// are left unchanged.
type OwnerChanges struct {
	FullName         *string
	Phone            *string
	Address          *string
	EmergencyContact *string
}

// Empty reports whether no field would change.
func (c OwnerChanges) Empty() bool {
	return c.FullName == nil && c.Phone == nil && c.Address == nil && c.EmergencyContact == nil
}

// Apply validates and applies the changes, returning the names of the
// fields that changed.
func (o *Owner) Apply(changes OwnerChanges) ([]string, error) {
	errs := apperrors.NewValidationErrors()
	var changed []string

	if changes.FullName != nil {
		name := strings.TrimSpace(*changes.FullName)
		switch {
		case name == "":
			errs.Add("fullName", "Full name is required")
		case len(name) > MaxFullNameLength:
			errs.Add("fullName", "Full name must be 255 characters or less")
		case name != o.FullName:
			o.FullName = name
			changed = append(changed, "fullName")
		}
	}
	if changes.Phone != nil {
		phone := strings.TrimSpace(*changes.Phone)
		if len(phone) > MaxPhoneLength {
			errs.Add("phone", "Phone must be 32 characters or less")
		} else if phone != o.Phone {
			o.Phone = phone
			changed = append(changed, "phone")
		}
	}
	if changes.Address != nil {
		address := strings.TrimSpace(*changes.Address)
		if len(address) > MaxAddressLength {
			errs.Add("address", "Address must be 500 characters or less")
		} else if address != o.Address {
			o.Address = address
			changed = append(changed, "address")
		}
	}
	if changes.EmergencyContact != nil {
		contact := strings.TrimSpace(*changes.EmergencyContact)
		if len(contact) > MaxAddressLength {
			errs.Add("emergencyContact", "Emergency contact must be 500 characters or less")
		} else if contact != o.EmergencyContact {
			o.EmergencyContact = contact
			changed = append(changed, "emergencyContact")
		}
	}

	if errs.HasErrors() {
		return nil, errs
	}
	if len(changed) > 0 {
		now := time.Now().UTC()
		o.UpdatedAt = &now
	}
	return changed, nil
}

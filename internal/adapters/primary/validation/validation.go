package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	corevalidation "github.com/lorrc/petcare-backend/internal/core/validation"
)

// MaxBodyBytes caps decoded request bodies.
const MaxBodyBytes = 1 << 20

// DecodeAndValidate decodes a JSON request body and runs struct tag validation
func DecodeAndValidate[T any](r *http.Request) (*T, error) {
	var req T

	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewBadRequestError(err, "Request body is required")
		}
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	if err := corevalidation.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

// PaginationParams holds pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// DefaultPagination returns default pagination values
func DefaultPagination() PaginationParams {
	return PaginationParams{
		Limit:  25,
		Offset: 0,
	}
}

// ParsePagination extracts and validates pagination from query parameters
func ParsePagination(r *http.Request, maxLimit int) PaginationParams {
	params := DefaultPagination()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			params.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			params.Offset = offset
		}
	}

	// Enforce maximum limit
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	return params
}

// ParseIDQueryParam parses an optional positive id query parameter. A
// present but malformed value is a validation error.
func ParseIDQueryParam(r *http.Request, key string) (*int64, error) {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return nil, nil
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil || value <= 0 {
		errs := apperrors.NewValidationErrors()
		errs.Add(key, fmt.Sprintf("must be a positive integer, got %q", valueStr))
		return nil, errs
	}
	return &value, nil
}

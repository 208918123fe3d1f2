package models

import (
	"strings"
	"time"

	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
)

// Application is a registered partner integration. Applications are
// immutable; the domain is unique across registrations.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Domain is a normalized host name, unique
//   - ExternalID is the public "app_" identifier sent by SDK callers
type Application struct {
	ID          id.ApplicationID `json:"id"`
	ExternalID  string           `json:"app_id"`
	SecretHash  string           `json:"-"`
	Name        string           `json:"name"`
	Domain      string           `json:"domain"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RegisterRequest is the input to application registration.
type RegisterRequest struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
}

// Normalize trims fields and reduces the domain to a lower-case host.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Domain = NormalizeDomain(r.Domain)
}

// Validate implements httputil.Validatable.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Normalize()
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > 128 {
		return dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	if r.Domain == "" {
		return dErrors.New(dErrors.CodeValidation, "domain is required")
	}
	if len(r.Domain) > 253 || strings.ContainsAny(r.Domain, " \t/\\@") {
		return dErrors.New(dErrors.CodeValidation, "domain is invalid")
	}
	if len(r.Description) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "description must be 1024 characters or less")
	}
	return nil
}

// NormalizeDomain strips scheme, path and trailing dots and lower-cases the host.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if _, after, ok := strings.Cut(d, "://"); ok {
		d = after
	}
	if host, _, ok := strings.Cut(d, "/"); ok {
		d = host
	}
	return strings.TrimRight(d, ".")
}

package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
)

// Status is the lifecycle state of a claim.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether next is a legal successor of s. The only
// edge is PENDING -> CONFIRMED.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next == StatusConfirmed
}

const maxMetaBytes = 16 << 10

// Claim records that a user address was present in a region, optionally
// backed by a confirmed ledger transaction.
//
// Invariants:
//   - Status is PENDING or CONFIRMED and only moves forward once
//   - TxReference, VerifiedValue, Score and ConfirmedAt are set iff CONFIRMED
//   - ApplicationID never changes
type Claim struct {
	ID            id.ClaimID
	ApplicationID id.ApplicationID
	UserAddress   id.UserAddress
	RegionID      id.RegionID
	Status        Status
	TxReference   string
	VerifiedValue decimal.Decimal
	Score         decimal.Decimal
	Meta          json.RawMessage
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
}

func (c *Claim) IsConfirmed() bool {
	return c.Status == StatusConfirmed
}

// Confirm moves a pending claim to CONFIRMED.
func (c *Claim) Confirm(txReference string, verified, score decimal.Decimal, now time.Time) error {
	if !c.Status.CanTransitionTo(StatusConfirmed) {
		return dErrors.New(dErrors.CodeAlreadyConfirmed, "claim already confirmed")
	}
	c.Status = StatusConfirmed
	c.TxReference = txReference
	c.VerifiedValue = verified
	c.Score = score
	at := now
	c.ConfirmedAt = &at
	return nil
}

// OpenRequest opens a claim for a named city.
type OpenRequest struct {
	UserAddress string          `json:"userAddress"`
	CityName    string          `json:"cityName"`
	CountryCode string          `json:"countryCode"`
	RegionName  string          `json:"regionName"`
	Meta        json.RawMessage `json:"meta"`
}

// Validate implements httputil.Validatable.
func (r *OpenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CityName = strings.TrimSpace(r.CityName)
	r.CountryCode = strings.TrimSpace(r.CountryCode)
	r.RegionName = strings.TrimSpace(r.RegionName)
	if _, err := id.ParseUserAddress(r.UserAddress); err != nil {
		return dErrors.New(dErrors.CodeValidation, "userAddress is invalid")
	}
	if r.CityName == "" || r.CountryCode == "" {
		return dErrors.New(dErrors.CodeValidation, "cityName and countryCode are required")
	}
	meta, err := NormalizeMeta(r.Meta)
	if err != nil {
		return err
	}
	r.Meta = meta
	return nil
}

// OpenWithLocationRequest opens a claim in the region nearest to a point.
type OpenWithLocationRequest struct {
	UserAddress string          `json:"userAddress"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Meta        json.RawMessage `json:"meta"`
}

// Validate implements httputil.Validatable. Coordinate ranges are checked
// by the region directory.
func (r *OpenWithLocationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if _, err := id.ParseUserAddress(r.UserAddress); err != nil {
		return dErrors.New(dErrors.CodeValidation, "userAddress is invalid")
	}
	if r.Latitude == nil || r.Longitude == nil {
		return dErrors.New(dErrors.CodeValidation, "latitude and longitude are required")
	}
	meta, err := NormalizeMeta(r.Meta)
	if err != nil {
		return err
	}
	r.Meta = meta
	return nil
}

// ConfirmRequest attaches a ledger transaction to a pending claim.
type ConfirmRequest struct {
	ClaimID  int64  `json:"geoTxId"`
	TxDigest string `json:"txDigest"`
}

// Validate implements httputil.Validatable.
func (r *ConfirmRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.TxDigest = strings.TrimSpace(r.TxDigest)
	if r.ClaimID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "geoTxId must be a positive integer")
	}
	return ValidateTxReference(r.TxDigest)
}

// ValidateTxReference checks the shape of a transaction digest without
// interpreting its encoding.
func ValidateTxReference(ref string) error {
	if ref == "" {
		return dErrors.New(dErrors.CodeValidation, "txDigest is required")
	}
	if len(ref) > 128 {
		return dErrors.New(dErrors.CodeValidation, "txDigest must be 128 characters or less")
	}
	for _, r := range ref {
		if r <= ' ' || r > '~' {
			return dErrors.New(dErrors.CodeValidation, "txDigest contains invalid characters")
		}
	}
	return nil
}

// NormalizeMeta treats JSON null as absent and requires an object otherwise.
func NormalizeMeta(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) > maxMetaBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "meta is too large")
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, dErrors.New(dErrors.CodeValidation, "meta must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

// AddressActivity is the confirmation history of one address in a region.
type AddressActivity struct {
	UserAddress  id.UserAddress
	FirstClaimID id.ClaimID
	ConfirmedAt  []time.Time
}

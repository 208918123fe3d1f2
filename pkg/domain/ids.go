package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "geoscore/pkg/domain-errors"
)

// Database-assigned identifiers. Distinct types keep a claim id from being
// passed where a region id is expected.
type (
	RegionID      int64
	ClaimID       int64
	ApplicationID int64
)

func (id RegionID) String() string      { return strconv.FormatInt(int64(id), 10) }
func (id ClaimID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id ApplicationID) String() string { return strconv.FormatInt(int64(id), 10) }

func (id RegionID) IsZero() bool      { return id == 0 }
func (id ClaimID) IsZero() bool       { return id == 0 }
func (id ApplicationID) IsZero() bool { return id == 0 }

// UserAddress is the opaque ledger account string a claim is made for.
type UserAddress string

func (a UserAddress) String() string { return string(a) }

const (
	maxSerialLength  = 19
	maxAddressLength = 128
)

func ParseRegionID(s string) (RegionID, error) {
	return parseSerial[RegionID](s, "region")
}

func ParseClaimID(s string) (ClaimID, error) {
	return parseSerial[ClaimID](s, "claim")
}

func ParseApplicationID(s string) (ApplicationID, error) {
	return parseSerial[ApplicationID](s, "application")
}

// ParseUserAddress trims the input and rejects empty, oversized or
// whitespace/control-bearing addresses. Case is preserved.
func ParseUserAddress(s string) (UserAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user address is required")
	}
	if len(s) > maxAddressLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user address is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user address must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "user address contains invalid characters")
		}
	}
	return UserAddress(s), nil
}

func parseSerial[T ~int64](s, kind string) (T, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	if len(s) > maxSerialLength {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	return T(n), nil
}

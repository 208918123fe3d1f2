package models

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
)

const (
	maxNameLength   = 128
	countryCodeSize = 2
)

// Region is a named place within a country. (Name, CountryCode) is unique.
type Region struct {
	ID          id.RegionID
	Name        string
	CountryCode string
	RegionName  string
	Center      *Coordinates
	CreatedAt   time.Time
}

// Key is the normalized natural key of a region.
type Key struct {
	Name        string
	CountryCode string
	RegionName  string
}

// NewKey trims the inputs and upper-cases the country code.
func NewKey(name, countryCode, regionName string) (Key, error) {
	k := Key{
		Name:        strings.TrimSpace(name),
		CountryCode: strings.ToUpper(strings.TrimSpace(countryCode)),
		RegionName:  strings.TrimSpace(regionName),
	}
	if k.Name == "" {
		return Key{}, dErrors.New(dErrors.CodeValidation, "city name is required")
	}
	if len(k.Name) > maxNameLength || len(k.RegionName) > maxNameLength {
		return Key{}, dErrors.New(dErrors.CodeValidation, "region name is too long")
	}
	if k.CountryCode == "" {
		return Key{}, dErrors.New(dErrors.CodeValidation, "country code is required")
	}
	if len(k.CountryCode) != countryCodeSize {
		return Key{}, dErrors.New(dErrors.CodeValidation, "country code must be a two-letter code")
	}
	return k, nil
}

// Code is the three-letter display code derived from the name.
func (r *Region) Code() string {
	letters := []rune(strings.ToUpper(r.Name))
	if len(letters) > 3 {
		letters = letters[:3]
	}
	return string(letters)
}

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

func NewCoordinates(lat, lon float64) (Coordinates, error) {
	if lat < -90 || lat > 90 {
		return Coordinates{}, dErrors.New(dErrors.CodeValidation, "latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return Coordinates{}, dErrors.New(dErrors.CodeValidation, "longitude must be between -180 and 180")
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}

func (c Coordinates) point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// DistanceMeters is the great-circle distance between c and o.
func (c Coordinates) DistanceMeters(o Coordinates) float64 {
	return geo.DistanceHaversine(c.point(), o.point())
}

// Nearest returns the region whose center is closest to at, skipping regions
// without a center. Ties keep the earlier region.
func Nearest(regions []*Region, at Coordinates) (*Region, bool) {
	var best *Region
	bestDist := 0.0
	for _, r := range regions {
		if r == nil || r.Center == nil {
			continue
		}
		d := at.DistanceMeters(*r.Center)
		if best == nil || d < bestDist {
			best, bestDist = r, d
		}
	}
	return best, best != nil
}

// Seed is one entry of an operator-supplied region list.
type Seed struct {
	Key    Key
	Center *Coordinates
}

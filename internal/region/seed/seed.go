// Package seed parses operator region lists. YAML is accepted, and since JSON
// is valid YAML, JSON bodies parse too.
package seed

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"geoscore/internal/region/models"
	dErrors "geoscore/pkg/domain-errors"
)

const maxEntries = 10_000

type document struct {
	Regions []entry `yaml:"regions"`
}

type entry struct {
	Name    string   `yaml:"name"`
	Country string   `yaml:"country"`
	Region  string   `yaml:"region"`
	Lat     *float64 `yaml:"lat"`
	Lon     *float64 `yaml:"lon"`
}

// Parse decodes and validates a region list. Entries must carry both lat and
// lon or neither.
func Parse(r io.Reader) ([]models.Seed, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, dErrors.New(dErrors.CodeValidation, "region list is empty")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid region list")
	}
	if len(doc.Regions) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "region list is empty")
	}
	if len(doc.Regions) > maxEntries {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("region list exceeds %d entries", maxEntries))
	}

	out := make([]models.Seed, 0, len(doc.Regions))
	for i, e := range doc.Regions {
		key, err := models.NewKey(e.Name, e.Country, e.Region)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("regions[%d]", i))
		}
		s := models.Seed{Key: key}
		switch {
		case e.Lat != nil && e.Lon != nil:
			c, err := models.NewCoordinates(*e.Lat, *e.Lon)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("regions[%d]", i))
			}
			s.Center = &c
		case e.Lat != nil || e.Lon != nil:
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("regions[%d]: lat and lon must be given together", i))
		}
		out = append(out, s)
	}
	return out, nil
}

package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tables holds the lookup tables the geo parser consults: synonymous
// attribute names tried in priority order, and the country alias map.
// The defaults cover the variants seen in the wild; deployments can override
// them from a YAML file.
type Tables struct {
	LocationFields []string          `yaml:"location_fields"`
	LatLonFields   []string          `yaml:"latlon_fields"`
	CountryAliases map[string]string `yaml:"country_aliases"`
}

// DefaultTables returns the compiled-in lookup tables.
func DefaultTables() *Tables {
	return &Tables{
		LocationFields: []string{
			"geo_loc_name",
			"geographic location",
			"geographic_location",
			"country",
			"location",
		},
		LatLonFields: []string{
			"lat_lon",
			"latitude and longitude",
			"latitude_longitude",
		},
		CountryAliases: map[string]string{
			"usa":           "United States",
			"u.s.a":         "United States",
			"united states": "United States",
			"uk":            "United Kingdom",
			"u.k.":          "United Kingdom",
			"england":       "United Kingdom",
			"scotland":      "United Kingdom",
			"uae":           "United Arab Emirates",
		},
	}
}

// LoadTables reads lookup tables from a YAML file. Sections left empty in
// the file fall back to the defaults.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read tables %s", path)
	}

	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "classify: parse tables")
	}

	def := DefaultTables()
	if len(t.LocationFields) == 0 {
		t.LocationFields = def.LocationFields
	}
	if len(t.LatLonFields) == 0 {
		t.LatLonFields = def.LatLonFields
	}
	if len(t.CountryAliases) == 0 {
		t.CountryAliases = def.CountryAliases
	}
	return &t, nil
}

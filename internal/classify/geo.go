package classify

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/urbanscope/harvester/internal/model"
)

// latLonPattern permissively extracts two signed decimal tokens with
// optional hemisphere letters ("42.36 N 71.05 W", "42.36, -71.05").
var latLonPattern = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*([NS])?\s*[,;\s]\s*(-?\d+(?:\.\d+)?)\s*([EW])?`)

// parseLatLon extracts a coordinate pair, folding hemisphere letters
// into the sign.
func parseLatLon(v string) (lat, lon string) {
	m := latLonPattern.FindStringSubmatch(v)
	if m == nil {
		return "", ""
	}
	lat, lon = m[1], m[3]
	if strings.EqualFold(m[2], "S") && !strings.HasPrefix(lat, "-") {
		lat = "-" + lat
	}
	if strings.EqualFold(m[4], "W") && !strings.HasPrefix(lon, "-") {
		lon = "-" + lon
	}
	return lat, lon
}

// Geo infers a best-effort location from sample attributes, falling back to
// scanning the given free-text strings for country alias hits.
//
// The two separator conventions are parsed asymmetrically on purpose:
// "Country: City" puts the country left of the colon, while "City, Country"
// puts it last. Both forms appear upstream and both are covered by tests.
func Geo(attrs map[string]string, fallbacks []string, tables *Tables) model.GeoGuess {
	if tables == nil {
		tables = DefaultTables()
	}

	var raw string
	for _, key := range tables.LocationFields {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			raw = v
			break
		}
	}

	guess := model.GeoGuess{Raw: raw}

	for _, key := range tables.LatLonFields {
		v := strings.TrimSpace(attrs[key])
		if v == "" {
			continue
		}
		guess.Lat, guess.Lon = parseLatLon(v)
		break
	}

	if raw != "" {
		guess.Country, guess.Region, guess.City = splitLocation(raw)
	}

	guess.Country = normalizeCountry(guess.Country, tables)

	if guess.Country == "" && len(fallbacks) > 0 {
		guess.Country = scanFallbacks(fallbacks, tables)
	}

	return guess
}

// splitLocation parses the raw location string. Colon form: country, then
// the remainder's comma bits yield city (last) and region (second to last).
// Comma form: city first, country last, region in between when present.
func splitLocation(raw string) (country, region, city string) {
	if idx := strings.Index(raw, ":"); idx >= 0 {
		country = strings.TrimSpace(raw[:idx])
		bits := splitTrim(raw[idx+1:], ",")
		if len(bits) > 0 {
			city = bits[len(bits)-1]
		}
		if len(bits) >= 2 {
			region = bits[len(bits)-2]
		}
		return country, region, city
	}

	bits := splitTrim(raw, ",")
	switch len(bits) {
	case 0:
	case 1:
		country = bits[0]
	default:
		city = bits[0]
		country = bits[len(bits)-1]
		if len(bits) >= 3 {
			region = bits[len(bits)-2]
		}
	}
	return country, region, city
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeCountry applies the alias table, else title-cases the raw value.
func normalizeCountry(country string, tables *Tables) string {
	if country == "" {
		return ""
	}
	if canonical, ok := tables.CountryAliases[norm(country)]; ok {
		return canonical
	}
	words := strings.Fields(country)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// scanFallbacks looks for alias keywords in the joined free-text strings.
func scanFallbacks(fallbacks []string, tables *Tables) string {
	var nonEmpty []string
	for _, f := range fallbacks {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	blob := norm(strings.Join(nonEmpty, " | "))
	aliases := make([]string, 0, len(tables.CountryAliases))
	for alias := range tables.CountryAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if strings.Contains(blob, alias) {
			return tables.CountryAliases[alias]
		}
	}
	return ""
}

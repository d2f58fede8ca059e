// Package address normalizes street addresses and decides absentee ownership.
package address

import (
	"regexp"
	"strings"
)

// suffixes maps every accepted spelling of a street suffix to its canonical form.
var suffixes = map[string]string{
	"AVENUE": "AVE", "AVE": "AVE", "AV": "AVE", "AVN": "AVE",
	"STREET": "ST", "ST": "ST", "STR": "ST",
	"BOULEVARD": "BLVD", "BLVD": "BLVD", "BL": "BLVD",
	"ROAD": "RD", "RD": "RD",
	"DRIVE": "DR", "DR": "DR",
	"LANE": "LN", "LN": "LN",
	"PLACE": "PL", "PL": "PL",
	"COURT": "CT", "CT": "CT",
	"CIRCLE": "CIR", "CIR": "CIR",
	"WAY": "WAY", "WY": "WAY",
	"TRAIL": "TRL", "TRL": "TRL", "TR": "TRL",
	"PARKWAY": "PKWY", "PKWY": "PKWY",
	"HIGHWAY": "HWY", "HWY": "HWY",
	"TERRACE": "TER", "TER": "TER",
	"LOOP": "LOOP", "LP": "LOOP",
	"PLAZA": "PLZ", "PLZ": "PLZ",
	"SQUARE": "SQ", "SQ": "SQ",
	"CANYON": "CYN", "CYN": "CYN",
	"VISTA": "VIS", "VIS": "VIS",
	"PASEO": "PASEO",
	"CALLE": "CALLE",
	"CAMINO": "CAMINO",
}

// directionals maps spelled-out directions to their abbreviations.
var directionals = map[string]string{
	"NORTH": "N", "SOUTH": "S", "EAST": "E", "WEST": "W",
	"NORTHEAST": "NE", "NORTHWEST": "NW", "SOUTHEAST": "SE", "SOUTHWEST": "SW",
}

// unitMarkers introduce a unit designator that is dropped together with the
// token that follows it.
var unitMarkers = map[string]bool{
	"APT": true, "APARTMENT": true, "UNIT": true, "STE": true, "SUITE": true,
	"SPC": true, "SPACE": true, "BLDG": true, "LOT": true, "RM": true, "#": true,
}

var punctuation = strings.NewReplacer(",", " ", ".", " ", ";", " ")

// Normalize produces the canonical form of an address: uppercase, punctuation
// removed, whitespace collapsed, suffixes and directionals abbreviated, unit
// designators stripped.
func Normalize(addr string) string {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	addr = punctuation.Replace(addr)
	tokens := strings.Fields(addr)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if strings.HasPrefix(tok, "#") {
			if tok == "#" {
				i++
			}
			continue
		}
		if unitMarkers[tok] && i > 0 {
			i++
			continue
		}
		if d, ok := directionals[tok]; ok {
			tok = d
		} else if s, ok := suffixes[tok]; ok && i > 0 {
			tok = s
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// Key is the enrichment-cache key for an address. It is the normalized form
// of the street line only.
func Key(addr string) string {
	return Normalize(StreetLine(addr))
}

// Split breaks a normalized street line into its house number and the most
// distinctive word of the street name (the longest token that is neither a
// directional nor a suffix). Either part may be empty.
func Split(key string) (number, name string) {
	tokens := strings.Fields(key)
	if len(tokens) > 0 && tokens[0][0] >= '0' && tokens[0][0] <= '9' {
		number, tokens = tokens[0], tokens[1:]
	}
	for _, tok := range tokens {
		if isDirectionAbbrev(tok) {
			continue
		}
		if _, ok := suffixes[tok]; ok {
			continue
		}
		if len(tok) > len(name) {
			name = tok
		}
	}
	if name == "" && len(tokens) > 0 {
		name = tokens[len(tokens)-1]
	}
	return number, name
}

func isDirectionAbbrev(tok string) bool {
	for _, d := range directionals {
		if tok == d {
			return true
		}
	}
	return false
}

// StreetLine returns the part of a one-line address before the first comma.
func StreetLine(addr string) string {
	if i := strings.Index(addr, ","); i >= 0 {
		return strings.TrimSpace(addr[:i])
	}
	return strings.TrimSpace(addr)
}

// HasStreetSuffix reports whether the final token of name is a street suffix,
// which marks a neighborhood query that is really an address search.
func HasStreetSuffix(name string) bool {
	tokens := strings.Fields(strings.ToUpper(punctuation.Replace(name)))
	if len(tokens) < 2 {
		return false
	}
	_, ok := suffixes[tokens[len(tokens)-1]]
	return ok
}

// Zip5 returns the first five digits of a zip or zip+4, or "" if none.
func Zip5(zip string) string {
	var digits []byte
	for i := 0; i < len(zip) && len(digits) < 5; i++ {
		c := zip[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		} else if len(digits) > 0 {
			break
		}
	}
	if len(digits) != 5 {
		return ""
	}
	return string(digits)
}

var zipPattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\s*$`)

// SplitLastLine parses "CITY ST 85705" (or "CITY, ST 85705-1234") into parts.
func SplitLastLine(line string) (city, state, zip string) {
	line = strings.ToUpper(strings.TrimSpace(punctuation.Replace(line)))
	if m := zipPattern.FindStringSubmatchIndex(line); m != nil {
		zip = line[m[2]:m[3]]
		line = strings.TrimSpace(line[:m[0]])
	}
	tokens := strings.Fields(line)
	if n := len(tokens); n > 0 && len(tokens[n-1]) == 2 {
		state = tokens[n-1]
		tokens = tokens[:n-1]
	}
	city = strings.Join(tokens, " ")
	return city, state, zip
}

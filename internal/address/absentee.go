package address

import (
	"regexp"
	"strings"
)

// IsAbsentee decides whether the owner's mailing address differs meaningfully
// from the property address.
//
// Differing five-digit zips always mean absentee. Otherwise the normalized
// property street must appear in the normalized mailing address on word
// boundaries ("123 MAIN" never matches "1123 MAIN"); a second pass drops the
// final token so that a missing or different suffix still matches. An empty
// mailing address is treated as owner-occupied since nothing can be proven.
func IsAbsentee(propertyAddr, propertyZip, mailingAddr, mailingZip string) bool {
	pz, mz := Zip5(propertyZip), Zip5(mailingZip)
	if pz != "" && mz != "" && pz != mz {
		return true
	}

	street := Key(propertyAddr)
	mailing := Normalize(mailingAddr)
	if street == "" || mailing == "" {
		return false
	}
	if containsWords(mailing, street) {
		return false
	}

	tokens := strings.Fields(street)
	if len(tokens) > 2 {
		if containsWords(mailing, strings.Join(tokens[:len(tokens)-1], " ")) {
			return false
		}
	}
	return true
}

func containsWords(haystack, needle string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(needle) + `\b`)
	if err != nil {
		return strings.Contains(haystack, needle)
	}
	return re.MatchString(haystack)
}

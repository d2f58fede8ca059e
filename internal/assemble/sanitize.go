package assemble

import (
	"math"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Sanitize replaces NaN and infinities with nil at every depth of a decoded
// JSON-like value.
func Sanitize(v any) any {
	switch t := v.(type) {
	case float64:
		if bad(t) {
			return nil
		}
	case float32:
		if bad(float64(t)) {
			return nil
		}
	case *float64:
		if t != nil && bad(*t) {
			return nil
		}
	case map[string]any:
		for k, e := range t {
			t[k] = Sanitize(e)
		}
	case []any:
		for i, e := range t {
			t[i] = Sanitize(e)
		}
	case []float64:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Sanitize(e)
		}
		return out
	}
	return v
}

// SanitizeLead clears every non-finite number on the lead.
func SanitizeLead(l *types.Lead) {
	for _, p := range []**float64{
		&l.Latitude, &l.Longitude, &l.Bathrooms, &l.LotSize,
		&l.AssessedValue, &l.LastSalePrice, &l.ListPrice,
	} {
		if *p != nil && bad(**p) {
			*p = nil
		}
	}
	if l.Latitude == nil || l.Longitude == nil {
		l.Latitude, l.Longitude = nil, nil
	}
	if l.Extra != nil {
		Sanitize(l.Extra)
	}
}

func bad(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

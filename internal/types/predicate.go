package types

import (
	"fmt"
	"sort"
	"strings"
)

// Distress filter names accepted in SearchFilters.DistressType.
const (
	DistressCodeViolations = "Code Violations"
	DistressAbsentee       = "Absentee Owner"
	DistressLiens          = "Liens"
	DistressJudgments      = "Judgments"
	DistressDivorce        = "Divorce"
	DistressProbate        = "Probate"
	DistressPreForeclosure = "Pre-Foreclosure"
	DistressLongHold       = "Long Hold"
	DistressUndervalued    = "Undervalued"
)

// Hot-list filter names accepted in SearchFilters.HotList.
const (
	HotFSBO         = "FSBO"
	HotPriceReduced = "Price Reduced"
	HotHighDOM      = "High Days on Market"
	HotNewListing   = "New Listing"
)

// PredicateKind classifies a filter predicate.
type PredicateKind string

// Predicate kinds.
const (
	KindDistress     PredicateKind = "distress"
	KindHotList      PredicateKind = "hot_list"
	KindPropertyType PredicateKind = "property_type"
	KindFeature      PredicateKind = "feature"
	KindRange        PredicateKind = "range"
	KindAddress      PredicateKind = "address"
	KindScope        PredicateKind = "scope"
	KindAll          PredicateKind = "all"
)

// Predicate is one requested filter.
type Predicate struct {
	Kind   PredicateKind
	Name   string
	Values []string
	Min    *float64
	Max    *float64
}

// Key is a stable textual form used in cache keys.
func (p Predicate) Key() string {
	var b strings.Builder
	b.WriteString(string(p.Kind))
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(p.Name))
	if len(p.Values) > 0 {
		vals := append([]string(nil), p.Values...)
		sort.Strings(vals)
		b.WriteByte('[')
		b.WriteString(strings.ToUpper(strings.Join(vals, ",")))
		b.WriteByte(']')
	}
	if p.Min != nil {
		fmt.Fprintf(&b, ">=%g", *p.Min)
	}
	if p.Max != nil {
		fmt.Fprintf(&b, "<=%g", *p.Max)
	}
	return b.String()
}

func (p Predicate) String() string {
	return p.Key()
}

var distressSignals = map[string]string{
	DistressCodeViolations: SignalCodeViolation,
	DistressAbsentee:       SignalAbsentee,
	DistressLiens:          SignalLien,
	DistressJudgments:      SignalJudgment,
	DistressDivorce:        SignalDivorce,
	DistressProbate:        SignalProbate,
	DistressPreForeclosure: SignalPreForeclosure,
	DistressLongHold:       SignalLongHold,
	DistressUndervalued:    SignalUndervalued,
}

var distressAliases = map[string]string{
	"CODE VIOLATIONS":  DistressCodeViolations,
	"CODE VIOLATION":   DistressCodeViolations,
	"VIOLATIONS":       DistressCodeViolations,
	"ABSENTEE OWNER":   DistressAbsentee,
	"ABSENTEE":         DistressAbsentee,
	"LIENS":            DistressLiens,
	"LIEN":             DistressLiens,
	"TAX LIEN":         DistressLiens,
	"JUDGMENTS":        DistressJudgments,
	"JUDGMENT":         DistressJudgments,
	"DIVORCE":          DistressDivorce,
	"PROBATE":          DistressProbate,
	"PRE-FORECLOSURE":  DistressPreForeclosure,
	"PREFORECLOSURE":   DistressPreForeclosure,
	"PRE FORECLOSURE":  DistressPreForeclosure,
	"FORECLOSURE":      DistressPreForeclosure,
	"LONG HOLD":        DistressLongHold,
	"UNDERVALUED":      DistressUndervalued,
	"BELOW MARKET":     DistressUndervalued,
	"UNDER VALUED":     DistressUndervalued,
	"NEIGHBORHOOD LOW": DistressUndervalued,
}

var hotListAliases = map[string]string{
	"FSBO":                HotFSBO,
	"FOR SALE BY OWNER":   HotFSBO,
	"PRICE REDUCED":       HotPriceReduced,
	"REDUCED":             HotPriceReduced,
	"HIGH DAYS ON MARKET": HotHighDOM,
	"HIGH DOM":            HotHighDOM,
	"NEW LISTING":         HotNewListing,
	"NEW":                 HotNewListing,
}

var hotListSignals = map[string]string{
	HotFSBO:         SignalFSBO,
	HotPriceReduced: SignalPriceReduced,
	HotHighDOM:      SignalHighDOM,
	HotNewListing:   SignalNewListing,
}

// CanonicalDistress maps a user-supplied distress name to its canonical form.
func CanonicalDistress(name string) (string, bool) {
	c, ok := distressAliases[strings.ToUpper(strings.TrimSpace(name))]
	return c, ok
}

// CanonicalHotList maps a user-supplied hot-list name to its canonical form.
func CanonicalHotList(name string) (string, bool) {
	c, ok := hotListAliases[strings.ToUpper(strings.TrimSpace(name))]
	return c, ok
}

// SignalFor returns the tag written to Lead.Signals when the named distress
// or hot-list predicate holds.
func SignalFor(name string) string {
	if s, ok := distressSignals[name]; ok {
		return s
	}
	if s, ok := hotListSignals[name]; ok {
		return s
	}
	return name
}

package types

import "strings"

// Distress signal tags carried on Lead.Signals.
const (
	SignalCodeViolation  = "Code Violation"
	SignalAbsentee       = "Absentee Owner"
	SignalLien           = "Lien"
	SignalJudgment       = "Judgment"
	SignalDivorce        = "Divorce"
	SignalProbate        = "Probate"
	SignalPreForeclosure = "Pre-Foreclosure"
	SignalLongHold       = "Long Hold"
	SignalUndervalued    = "Undervalued"

	SignalFSBO         = "FSBO"
	SignalPriceReduced = "Price Reduced"
	SignalHighDOM      = "High Days on Market"
	SignalNewListing   = "New Listing"
)

// Signals is an ordered set of distress tags.
type Signals []string

// Add appends s unless it is already present and returns the updated set.
func (s Signals) Add(tag string) Signals {
	tag = strings.TrimSpace(tag)
	if tag == "" || s.Has(tag) {
		return s
	}
	return append(s, tag)
}

// Has reports whether tag is in the set.
func (s Signals) Has(tag string) bool {
	for _, t := range s {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// HasAll reports whether every tag is in the set.
func (s Signals) HasAll(tags ...string) bool {
	for _, t := range tags {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

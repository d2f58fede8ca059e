package types

import (
	"strings"

	"github.com/google/uuid"
)

// Enrichment provenance flags recorded on Lead.Enrichment.
const (
	EnrichedParcel   = "parcel"
	EnrichedListing  = "listing"
	EnrichedZoning   = "zoning"
	EnrichedFlood    = "flood_zone"
	EnrichedSchool   = "school_district"
	EnrichedOverlays = "overlays"
	EnrichedNbhd     = "neighborhood"
	EnrichedSubdiv   = "subdivision"
	EnrichedZip      = "zip"
	EnrichedRecorder = "recorder"
)

// Zip provenance.
const (
	ZipFromProperty = "property"
	ZipFromOwner    = "owner"
	ZipFromSpatial  = "spatial"
)

// Lead holds everything known about one property. Candidates emitted by the
// upstream adapters are partial leads; the enrichment engine fills the rest.
type Lead struct {
	ID       string `json:"id"`
	Source   string `json:"source,omitempty"`
	SourceID string `json:"source_id,omitempty"`

	Address string `json:"address"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	ParcelID       string `json:"parcel_id,omitempty"`
	OwnerName      string `json:"owner_name,omitempty"`
	MailingAddress string `json:"mailing_address,omitempty"`
	MailingCity    string `json:"mailing_city,omitempty"`
	MailingState   string `json:"mailing_state,omitempty"`
	MailingZip     string `json:"mailing_zip,omitempty"`

	Bedrooms        *int     `json:"bedrooms"`
	Bathrooms       *float64 `json:"bathrooms"`
	SquareFeet      *int     `json:"sqft"`
	YearBuilt       *int     `json:"year_built"`
	LotSize         *float64 `json:"lot_size"`
	PropertyUseCode string   `json:"property_use_code,omitempty"`
	PropertyType    string   `json:"property_type,omitempty"`

	AssessedValue *float64 `json:"assessed_value"`
	LastSaleDate  string   `json:"last_sale_date,omitempty"`
	LastSalePrice *float64 `json:"last_sale_price"`
	ListPrice     *float64 `json:"list_price"`

	HasPool       *bool `json:"has_pool"`
	HasGarage     *bool `json:"has_garage"`
	HasGuestHouse *bool `json:"has_guest_house"`

	ListingStatus string `json:"listing_status,omitempty"`
	DaysOnMarket  *int   `json:"days_on_market"`
	ListingAgent  string `json:"listing_agent,omitempty"`
	ListingOffice string `json:"listing_office,omitempty"`
	PriceReduced  *bool  `json:"price_reduced"`
	PropertyURL   string `json:"property_url,omitempty"`
	Description   string `json:"description,omitempty"`

	Zoning         string   `json:"zoning,omitempty"`
	FloodZone      string   `json:"flood_zone,omitempty"`
	SchoolDistrict string   `json:"school_district,omitempty"`
	Overlays       []string `json:"overlays,omitempty"`
	Neighborhood   string   `json:"neighborhood,omitempty"`
	Subdivision    string   `json:"subdivision,omitempty"`

	Signals        Signals     `json:"distress_signals"`
	Violations     []Violation `json:"violations,omitempty"`
	ViolationCount int         `json:"violation_count,omitempty"`
	Documents      []Document  `json:"documents,omitempty"`

	Enrichment map[string]bool `json:"enrichment,omitempty"`
	Extra      map[string]any  `json:"extra,omitempty"`

	// ZipSource records where Zip came from so the engine knows which leads
	// need a spatial backfill.
	ZipSource string `json:"-"`
}

// Violation is a single code-enforcement activity at an address.
type Violation struct {
	CaseNumber  string `json:"case_number,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	OpenedDate  string `json:"opened_date,omitempty"`
}

// Document is a recorder document associated with a lead's owner.
type Document struct {
	Sequence   string `json:"sequence"`
	DocType    string `json:"doc_type"`
	RecordedAt string `json:"recorded_at,omitempty"`
	Grantor    string `json:"grantor,omitempty"`
	Grantee    string `json:"grantee,omitempty"`
}

// NewLeadID returns a fresh random identifier.
func NewLeadID() string {
	return uuid.NewString()
}

// StableID derives a deterministic identifier from a provider key so that
// identical requests produce identical lead IDs.
func StableID(source, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+":"+strings.ToUpper(key))).String()
}

// HasPoint reports whether both coordinates are set.
func (l *Lead) HasPoint() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Point returns the coordinates; ok is false when either is missing.
func (l *Lead) Point() (lat, lon float64, ok bool) {
	if !l.HasPoint() {
		return 0, 0, false
	}
	return *l.Latitude, *l.Longitude, true
}

// SetPoint sets both coordinates.
func (l *Lead) SetPoint(lat, lon float64) {
	l.Latitude = Float(lat)
	l.Longitude = Float(lon)
}

// MarkEnriched records that an enricher has run for this lead.
func (l *Lead) MarkEnriched(flag string) {
	if l.Enrichment == nil {
		l.Enrichment = make(map[string]bool)
	}
	l.Enrichment[flag] = true
}

// IsEnriched reports whether the named enricher already ran.
func (l *Lead) IsEnriched(flag string) bool {
	return l.Enrichment[flag]
}

// SetExtra stores a provider attribute that has no dedicated field.
func (l *Lead) SetExtra(key string, value any) {
	if l.Extra == nil {
		l.Extra = make(map[string]any)
	}
	l.Extra[key] = value
}

// Clone returns a deep copy so callers never share references with the
// pipeline or the caches.
func (l *Lead) Clone() Lead {
	c := *l
	c.Latitude = cloneFloat(l.Latitude)
	c.Longitude = cloneFloat(l.Longitude)
	c.Bedrooms = cloneInt(l.Bedrooms)
	c.Bathrooms = cloneFloat(l.Bathrooms)
	c.SquareFeet = cloneInt(l.SquareFeet)
	c.YearBuilt = cloneInt(l.YearBuilt)
	c.LotSize = cloneFloat(l.LotSize)
	c.AssessedValue = cloneFloat(l.AssessedValue)
	c.LastSalePrice = cloneFloat(l.LastSalePrice)
	c.ListPrice = cloneFloat(l.ListPrice)
	c.HasPool = cloneBool(l.HasPool)
	c.HasGarage = cloneBool(l.HasGarage)
	c.HasGuestHouse = cloneBool(l.HasGuestHouse)
	c.DaysOnMarket = cloneInt(l.DaysOnMarket)
	c.PriceReduced = cloneBool(l.PriceReduced)
	c.Overlays = append([]string(nil), l.Overlays...)
	c.Signals = append(Signals(nil), l.Signals...)
	c.Violations = append([]Violation(nil), l.Violations...)
	c.Documents = append([]Document(nil), l.Documents...)
	if l.Enrichment != nil {
		c.Enrichment = make(map[string]bool, len(l.Enrichment))
		for k, v := range l.Enrichment {
			c.Enrichment[k] = v
		}
	}
	if l.Extra != nil {
		c.Extra = make(map[string]any, len(l.Extra))
		for k, v := range l.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// MergeNonNull copies every non-empty field of src into l. Empty or nil
// fields in src never overwrite populated fields in l.
func (l *Lead) MergeNonNull(src *Lead) {
	mergeString(&l.Source, src.Source)
	mergeString(&l.SourceID, src.SourceID)
	mergeString(&l.Address, src.Address)
	mergeString(&l.City, src.City)
	mergeString(&l.State, src.State)
	if src.Zip != "" {
		l.Zip = src.Zip
		if src.ZipSource != "" {
			l.ZipSource = src.ZipSource
		}
	}
	mergeFloat(&l.Latitude, src.Latitude)
	mergeFloat(&l.Longitude, src.Longitude)
	mergeString(&l.ParcelID, src.ParcelID)
	mergeString(&l.OwnerName, src.OwnerName)
	mergeString(&l.MailingAddress, src.MailingAddress)
	mergeString(&l.MailingCity, src.MailingCity)
	mergeString(&l.MailingState, src.MailingState)
	mergeString(&l.MailingZip, src.MailingZip)
	mergeInt(&l.Bedrooms, src.Bedrooms)
	mergeFloat(&l.Bathrooms, src.Bathrooms)
	mergeInt(&l.SquareFeet, src.SquareFeet)
	mergeInt(&l.YearBuilt, src.YearBuilt)
	mergeFloat(&l.LotSize, src.LotSize)
	mergeString(&l.PropertyUseCode, src.PropertyUseCode)
	mergeString(&l.PropertyType, src.PropertyType)
	mergeFloat(&l.AssessedValue, src.AssessedValue)
	mergeString(&l.LastSaleDate, src.LastSaleDate)
	mergeFloat(&l.LastSalePrice, src.LastSalePrice)
	mergeFloat(&l.ListPrice, src.ListPrice)
	mergeBool(&l.HasPool, src.HasPool)
	mergeBool(&l.HasGarage, src.HasGarage)
	mergeBool(&l.HasGuestHouse, src.HasGuestHouse)
	mergeString(&l.ListingStatus, src.ListingStatus)
	mergeInt(&l.DaysOnMarket, src.DaysOnMarket)
	mergeString(&l.ListingAgent, src.ListingAgent)
	mergeString(&l.ListingOffice, src.ListingOffice)
	mergeBool(&l.PriceReduced, src.PriceReduced)
	mergeString(&l.PropertyURL, src.PropertyURL)
	mergeString(&l.Description, src.Description)
	mergeString(&l.Zoning, src.Zoning)
	mergeString(&l.FloodZone, src.FloodZone)
	mergeString(&l.SchoolDistrict, src.SchoolDistrict)
	if len(src.Overlays) > 0 {
		l.Overlays = append([]string(nil), src.Overlays...)
	}
	mergeString(&l.Neighborhood, src.Neighborhood)
	mergeString(&l.Subdivision, src.Subdivision)
	for _, s := range src.Signals {
		l.Signals = l.Signals.Add(s)
	}
	if len(src.Violations) > 0 {
		l.Violations = append([]Violation(nil), src.Violations...)
		l.ViolationCount = len(src.Violations)
	}
	if len(src.Documents) > 0 {
		l.Documents = append([]Document(nil), src.Documents...)
	}
	for k, v := range src.Enrichment {
		if v {
			l.MarkEnriched(k)
		}
	}
	for k, v := range src.Extra {
		if v != nil {
			l.SetExtra(k, v)
		}
	}
}

// FillMissing populates the fields l lacks from src. Populated fields of l
// always win.
func (l *Lead) FillMissing(src *Lead) {
	merged := src.Clone()
	merged.MergeNonNull(l)
	if l.ID != "" {
		merged.ID = l.ID
	}
	*l = merged
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func mergeString(dst *string, src string) {
	if strings.TrimSpace(src) != "" {
		*dst = src
	}
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = cloneFloat(src)
	}
}

func mergeInt(dst **int, src *int) {
	if src != nil {
		*dst = cloneInt(src)
	}
}

func mergeBool(dst **bool, src *bool) {
	if src != nil {
		*dst = cloneBool(src)
	}
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

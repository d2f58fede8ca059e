package types

import (
	"sort"
	"strings"
)

// Property categories, derived from the leading digit of the use code.
const (
	CategoryResidential  = "Residential"
	CategoryCommercial   = "Commercial"
	CategoryIndustrial   = "Industrial"
	CategoryAgricultural = "Agricultural"
	CategoryExempt       = "Exempt"
	CategoryUnknown      = "Unknown"
)

// Common property type names.
const (
	TypeVacantLand        = "Vacant Land"
	TypePartiallyComplete = "Partially Complete"
	TypeSingleFamily      = "Single Family"
	TypeGuestHouse        = "Single Family w/ Guest House"
	TypeCondo             = "Condo"
	TypeTownhouse         = "Townhouse"
	TypeMobileHome        = "Mobile Home"
	TypeMultiFamily       = "Multi-Family"
	TypeDuplex            = "Duplex"
	TypeTriplexFourplex   = "Triplex/Fourplex"
	TypeApartment         = "Apartment"
)

// guestHousePrefix marks single-family parcels with a detached guest house.
const guestHousePrefix = "018"

// propertyUseCodes maps four-digit county property-use codes to type names.
var propertyUseCodes = map[string]string{
	// Vacant land
	"0000": TypeVacantLand,
	"0001": TypeVacantLand,
	"0002": TypeVacantLand,
	"0003": TypeVacantLand,
	"0010": TypeVacantLand,
	"0011": TypeVacantLand,
	"0012": TypeVacantLand,
	"0013": TypeVacantLand,
	"0014": TypePartiallyComplete,
	"0015": TypePartiallyComplete,
	"0016": TypeVacantLand,
	"0017": TypeVacantLand,
	"0020": "Vacant Commercial Land",
	"0021": "Vacant Commercial Land",
	"0030": "Vacant Industrial Land",
	"0031": "Vacant Industrial Land",
	"0040": "Vacant Agricultural Land",
	"0050": "Common Area",
	"0051": "Common Area",
	"0060": "Golf Course Lot",

	// Single family
	"0100": TypeSingleFamily,
	"0101": TypeSingleFamily,
	"0102": TypeSingleFamily,
	"0103": TypeSingleFamily,
	"0110": TypeSingleFamily,
	"0111": TypeSingleFamily,
	"0112": TypeSingleFamily,
	"0120": TypeSingleFamily,
	"0121": TypeSingleFamily,
	"0130": TypeSingleFamily,
	"0131": TypeSingleFamily,
	"0132": TypeSingleFamily,
	"0133": TypeSingleFamily,
	"0134": TypeSingleFamily,
	"0140": TypeCondo,
	"0141": TypeCondo,
	"0142": TypeTownhouse,
	"0143": TypeTownhouse,
	"0144": TypeCondo,
	"0150": TypeMobileHome,
	"0151": TypeMobileHome,
	"0152": TypeMobileHome,
	"0153": TypeMobileHome,
	"0160": "Patio Home",
	"0161": "Patio Home",
	"0170": "Cluster Home",
	"0171": "Cluster Home",
	"0180": TypeGuestHouse,
	"0181": TypeGuestHouse,
	"0182": TypeGuestHouse,
	"0183": TypeGuestHouse,
	"0190": TypePartiallyComplete,
	"0191": TypePartiallyComplete,

	// Small multi-family
	"0200": TypeDuplex,
	"0201": TypeDuplex,
	"0210": TypeTriplexFourplex,
	"0211": TypeTriplexFourplex,
	"0220": "Residential Rental",
	"0221": "Residential Rental",
	"0300": TypeMultiFamily,
	"0310": TypeApartment,
	"0311": TypeApartment,
	"0320": TypeApartment,
	"0330": "Senior Housing",
	"0340": "Group Home",
	"0350": "Mobile Home Park",
	"0351": "Mobile Home Park",
	"0360": "RV Park",
	"0700": TypeMobileHome,
	"0710": TypeMobileHome,
	"0720": TypeMobileHome,

	// Residential rental class
	"0800": "Residential Rental",
	"0810": "Residential Rental",
	"0812": "Residential Rental",
	"0813": "Residential Rental",
	"0820": TypeDuplex,
	"0830": TypeTriplexFourplex,
	"0840": TypeCondo,
	"0850": TypeMobileHome,
	"0860": TypeApartment,
	"0870": TypeTownhouse,

	// Commercial
	"1000": "Commercial",
	"1010": "Retail",
	"1011": "Retail",
	"1020": "Shopping Center",
	"1021": "Shopping Center",
	"1030": "Office",
	"1031": "Office",
	"1032": "Medical Office",
	"1040": "Bank",
	"1050": "Restaurant",
	"1051": "Fast Food",
	"1060": "Service Station",
	"1061": "Car Wash",
	"1070": "Auto Sales",
	"1080": "Hotel/Motel",
	"1081": "Hotel/Motel",
	"1090": "Parking",
	"1100": "Convenience Store",
	"1110": "Nursing Home",
	"1120": "Hospital",
	"1130": "Day Care",
	"1140": "Mixed Use",
	"1200": "Bar/Tavern",
	"1300": "Commercial Partially Complete",
	"2000": "Commercial",
	"2010": "Golf Course",
	"2020": "Recreation",
	"2030": "Theater",
	"2040": "Bowling Alley",
	"2050": "Health Club",
	"2100": "Mini Storage",
	"2200": "Commercial Condo",

	// Industrial
	"3000": "Industrial",
	"3010": "Warehouse",
	"3011": "Warehouse",
	"3020": "Light Manufacturing",
	"3030": "Heavy Manufacturing",
	"3040": "Distribution",
	"3050": "Industrial Park",
	"3060": "Mining",
	"3070": "Utility",
	"3100": "Industrial Condo",

	// Agricultural
	"4000": "Agricultural",
	"4010": "Irrigated Farm",
	"4020": "Dry Farm",
	"4030": "Ranch",
	"4040": "Orchard",
	"4050": "Dairy",
	"4060": "Feed Lot",
	"4070": "Nursery",

	// Exempt
	"9000": "Exempt",
	"9010": "Government",
	"9020": "School",
	"9030": "Church",
	"9040": "Cemetery",
	"9050": "Park",
}

var propertyUsePrefix3 = map[string]string{
	"001": TypeVacantLand,
	"002": "Vacant Commercial Land",
	"003": "Vacant Industrial Land",
	"010": TypeSingleFamily,
	"011": TypeSingleFamily,
	"012": TypeSingleFamily,
	"013": TypeSingleFamily,
	"014": TypeCondo,
	"015": TypeMobileHome,
	"016": "Patio Home",
	"017": "Cluster Home",
	"018": TypeGuestHouse,
	"019": TypePartiallyComplete,
	"020": TypeDuplex,
	"021": TypeTriplexFourplex,
	"031": TypeApartment,
	"035": "Mobile Home Park",
	"081": "Residential Rental",
	"101": "Retail",
	"103": "Office",
	"105": "Restaurant",
	"108": "Hotel/Motel",
	"301": "Warehouse",
	"302": "Light Manufacturing",
	"403": "Ranch",
}

var propertyUsePrefix2 = map[string]string{
	"00": TypeVacantLand,
	"01": TypeSingleFamily,
	"02": TypeDuplex,
	"03": TypeMultiFamily,
	"04": TypeSingleFamily,
	"05": TypeSingleFamily,
	"06": TypeSingleFamily,
	"07": TypeMobileHome,
	"08": "Residential Rental",
	"09": "Residential Other",
	"10": "Commercial",
	"11": "Commercial",
	"12": "Commercial",
	"13": "Commercial",
	"20": "Commercial",
	"21": "Commercial",
	"22": "Commercial",
	"30": "Industrial",
	"31": "Industrial",
	"40": "Agricultural",
	"41": "Agricultural",
	"80": "Residential Rental",
	"81": "Residential Rental",
	"90": "Exempt",
}

var categoryByDigit = map[byte]string{
	'0': CategoryResidential,
	'1': CategoryCommercial,
	'2': CategoryCommercial,
	'3': CategoryIndustrial,
	'4': CategoryAgricultural,
	'8': CategoryResidential,
	'9': CategoryExempt,
}

// PropertyTypeName derives the type name for a property-use code: exact
// four-digit match, then three- and two-digit prefixes, then the category of
// the leading digit.
func PropertyTypeName(code string) string {
	code = normalizeUseCode(code)
	if code == "" {
		return CategoryUnknown
	}
	if name, ok := propertyUseCodes[code]; ok {
		return name
	}
	if len(code) >= 3 {
		if name, ok := propertyUsePrefix3[code[:3]]; ok {
			return name
		}
	}
	if len(code) >= 2 {
		if name, ok := propertyUsePrefix2[code[:2]]; ok {
			return name
		}
	}
	return PropertyCategory(code)
}

// PropertyCategory returns the broad category for a use code.
func PropertyCategory(code string) string {
	code = normalizeUseCode(code)
	if code == "" {
		return CategoryUnknown
	}
	if c, ok := categoryByDigit[code[0]]; ok {
		return c
	}
	return CategoryUnknown
}

// IsGuestHouseCode reports whether the use code denotes a guest house.
func IsGuestHouseCode(code string) bool {
	return strings.HasPrefix(normalizeUseCode(code), guestHousePrefix)
}

// UseCodesFor returns every known four-digit code whose type name or
// category matches one of names, sorted. Used to push property-type filters
// down to the parcel layer.
func UseCodesFor(names []string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	var codes []string
	for code, name := range propertyUseCodes {
		if want[strings.ToUpper(name)] || want[strings.ToUpper(PropertyCategory(code))] {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// MatchesPropertyType reports whether a lead's use code satisfies any of the
// requested names, which may be type names, categories or code prefixes.
func MatchesPropertyType(code, typeName string, names []string) bool {
	code = normalizeUseCode(code)
	if typeName == "" {
		typeName = PropertyTypeName(code)
	}
	category := PropertyCategory(code)
	for _, n := range names {
		n = strings.TrimSpace(n)
		switch {
		case strings.EqualFold(n, "all"):
			return true
		case strings.EqualFold(n, typeName), strings.EqualFold(n, category):
			return true
		case code != "" && isDigits(n) && strings.HasPrefix(code, n):
			return true
		case strings.EqualFold(n, TypeSingleFamily) && typeName == TypeGuestHouse:
			return true
		}
	}
	return false
}

// normalizeUseCode trims and left-pads numeric codes to four digits.
func normalizeUseCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || !isDigits(code) {
		return code
	}
	for len(code) < 4 {
		code = "0" + code
	}
	return code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

const (
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

const maxCell = 40

var tableHeader = []string{"Address", "Zip", "Owner", "Type", "Value", "Signals"}

// leadRow is one table row for a lead.
func leadRow(l types.Lead) []string {
	return []string{
		l.Address,
		l.Zip,
		l.OwnerName,
		firstNonEmpty(l.PropertyType, l.PropertyUseCode),
		money(l.AssessedValue),
		strings.Join(l.Signals, ", "),
	}
}

// tableLines lays rows out in columns padded by display width, so wide
// runes in owner names do not break the alignment.
func tableLines(header []string, rows [][]string) []string {
	widths := make([]int, len(header))
	all := append([][]string{header}, rows...)
	for _, row := range all {
		for i := range header {
			if i < len(row) {
				widths[i] = max(widths[i], runewidth.StringWidth(runewidth.Truncate(row[i], maxCell, "…")))
			}
		}
	}

	lines := make([]string, 0, len(all)+1)
	for r, row := range all {
		var sb strings.Builder
		for i := range header {
			cell := ""
			if i < len(row) {
				cell = runewidth.Truncate(row[i], maxCell, "…")
			}
			if i > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
		if r == 0 {
			var sep []string
			for _, w := range widths {
				sep = append(sep, strings.Repeat("-", w))
			}
			lines = append(lines, strings.Join(sep, "-+-"))
		}
	}
	return lines
}

// renderLead prints the lead in a readable layout.
func renderLead(w io.Writer, l types.Lead) {
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Address           : %s, %s %s %s\n", l.Address, l.City, l.State, l.Zip)
	fmt.Fprintf(w, "Parcel            : %s\n", l.ParcelID)
	fmt.Fprintf(w, "Subdivision       : %s\n", l.Subdivision)
	fmt.Fprintf(w, "Owner             : %s\n", l.OwnerName)

	mail := strings.TrimSpace(fmt.Sprintf("%s, %s %s %s", l.MailingAddress, l.MailingCity, l.MailingState, l.MailingZip))
	tag := ""
	switch {
	case l.MailingAddress == "":
	case address.IsAbsentee(l.Address, l.Zip, l.MailingAddress, l.MailingZip):
		tag = fmt.Sprintf(" %s[Absentee]%s", colorRed, colorReset)
	default:
		tag = fmt.Sprintf(" %s[Same]%s", colorGreen, colorReset)
	}
	fmt.Fprintf(w, "Owner Address     : %s%s\n", strings.Trim(mail, ", "), tag)
	fmt.Fprintf(w, "Last Sale         : %s %s\n", l.LastSaleDate, money(l.LastSalePrice))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Assessed Value    : %s\n", money(l.AssessedValue))
	fmt.Fprintf(w, "List Price        : %s %s\n", money(l.ListPrice), l.ListingStatus)
	fmt.Fprintf(w, "Type              : %s (%s)\n", l.PropertyType, l.PropertyUseCode)
	fmt.Fprintf(w, "Year Built        : %s\n", intStr(l.YearBuilt))
	fmt.Fprintf(w, "Living Area (sf)  : %s\n", intStr(l.SquareFeet))
	fmt.Fprintf(w, "Bedrooms/Bath     : %s / %s\n", intStr(l.Bedrooms), floatStr(l.Bathrooms))
	fmt.Fprintf(w, "Lot               : %s acres\n", floatStr(l.LotSize))
	fmt.Fprintf(w, "Pool/Garage/Guest : %s / %s / %s\n", flag(l.HasPool), flag(l.HasGarage), flag(l.HasGuestHouse))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Zoning            : %s\n", l.Zoning)
	fmt.Fprintf(w, "Flood Zone        : %s\n", l.FloodZone)
	fmt.Fprintf(w, "School District   : %s\n", l.SchoolDistrict)
	if len(l.Overlays) > 0 {
		fmt.Fprintf(w, "Overlays          : %s\n", strings.Join(l.Overlays, ", "))
	}
	if len(l.Signals) > 0 {
		fmt.Fprintf(w, "Signals           : %s%s%s\n", colorYellow, strings.Join(l.Signals, ", "), colorReset)
	}
	if l.ViolationCount > 0 {
		fmt.Fprintf(w, "Violations        : %d\n", l.ViolationCount)
	}
	if l.PropertyURL != "" {
		fmt.Fprintf(w, "Listing           : %s\n", l.PropertyURL)
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
}

func money(v *float64) string {
	if v == nil {
		return ""
	}
	s := strconv.FormatInt(int64(*v+0.5), 10)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return "$" + string(out)
}

func intStr(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func floatStr(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func flag(v *bool) string {
	switch {
	case v == nil:
		return "?"
	case *v:
		return "yes"
	}
	return "no"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

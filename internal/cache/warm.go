package cache

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Column names of the county parcel export used for warm-up.
const (
	colParcel     = "PARCEL"
	colAddress    = "ADDRESS"
	colCity       = "CITY"
	colZip        = "ZIP"
	colOwner      = "OWNER"
	colMailAddr   = "MAIL_ADDR"
	colMailCity   = "MAIL_CITY"
	colMailState  = "MAIL_STATE"
	colMailZip    = "MAIL_ZIP"
	colUseCode    = "USE_CODE"
	colSqft       = "SQFT"
	colYearBuilt  = "YEAR_BUILT"
	colBeds       = "BEDS"
	colBaths      = "BATHS"
	colPool       = "POOL"
	colGarage     = "GARAGE"
	colLat        = "LAT"
	colLon        = "LON"
	colFullCash   = "FULL_CASH"
	colSaleDate   = "SALE_DATE"
	colSalePrice  = "SALE_PRICE"
	colLotAcres   = "LOT_ACRES"
	colSubdivName = "SUBDIVISION"
)

// WarmFromFile streams a pipe-delimited export with a header row into the
// enrichment cache and returns the number of rows loaded.
func WarmFromFile(ctx context.Context, path string, ec *EnrichmentCache) (int, error) {
	var loaded int64
	err := readFile(ctx, path, func(rec map[string]string) {
		l := leadFromRecord(rec)
		if l.Address == "" {
			return
		}
		ec.Save(&l)
		atomic.AddInt64(&loaded, 1)
	})
	return int(loaded), err
}

// readFile iterates through a |-delimited file with a header row, calling fn
// for each record from a pool of workers.
func readFile(ctx context.Context, path string, fn func(record map[string]string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	if !scanner.Scan() {
		return fmt.Errorf("file %s is empty", path)
	}
	header := strings.Split(scanner.Text(), "|")
	for i := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(header[i]))
	}

	// Producer (I/O) feeds workers (parsing).
	linesCh := make(chan string, 4096)

	workers := runtime.NumCPU()
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for line := range linesCh {
				cols := strings.Split(line, "|")
				rec := make(map[string]string, len(header))
				for j, h := range header {
					if j < len(cols) {
						rec[h] = strings.TrimSpace(cols[j])
					}
				}
				fn(rec)
			}
		}()
	}

	var scanErr error
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			scanErr = err
			break
		}
		linesCh <- scanner.Text()
	}
	close(linesCh)
	wg.Wait()

	if scanErr != nil {
		return scanErr
	}
	return scanner.Err()
}

func leadFromRecord(rec map[string]string) types.Lead {
	l := types.Lead{
		Source:          "county_export",
		SourceID:        rec[colParcel],
		ParcelID:        rec[colParcel],
		Address:         strings.ToUpper(rec[colAddress]),
		City:            strings.ToUpper(rec[colCity]),
		State:           "AZ",
		Zip:             rec[colZip],
		OwnerName:       rec[colOwner],
		MailingAddress:  rec[colMailAddr],
		MailingCity:     rec[colMailCity],
		MailingState:    rec[colMailState],
		MailingZip:      rec[colMailZip],
		PropertyUseCode: rec[colUseCode],
		LastSaleDate:    rec[colSaleDate],
		Subdivision:     rec[colSubdivName],
	}
	if l.Zip != "" {
		l.ZipSource = types.ZipFromProperty
	}
	if l.PropertyUseCode != "" {
		l.PropertyType = types.PropertyTypeName(l.PropertyUseCode)
		if types.IsGuestHouseCode(l.PropertyUseCode) {
			l.HasGuestHouse = types.Bool(true)
		}
	}
	l.SquareFeet = parseInt(rec[colSqft])
	l.YearBuilt = parseInt(rec[colYearBuilt])
	l.Bedrooms = parseInt(rec[colBeds])
	l.Bathrooms = parseFloat(rec[colBaths])
	l.AssessedValue = parseFloat(rec[colFullCash])
	l.LastSalePrice = parseFloat(rec[colSalePrice])
	l.LotSize = parseFloat(rec[colLotAcres])
	l.HasPool = parseFlag(rec[colPool])
	l.HasGarage = parseFlag(rec[colGarage])
	lat, lon := parseFloat(rec[colLat]), parseFloat(rec[colLon])
	if lat != nil && lon != nil {
		l.SetPoint(*lat, *lon)
	}
	if l.ParcelID != "" {
		l.MarkEnriched(types.EnrichedParcel)
	}
	return l
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f == 0 {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	f := parseFloat(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func parseFlag(s string) *bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "TRUE", "1":
		return types.Bool(true)
	case "N", "NO", "FALSE", "0":
		return types.Bool(false)
	}
	return nil
}

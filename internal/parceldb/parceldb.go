// Package parceldb reads the optional Oracle parcel snapshot used when the
// county parcel layer cannot place an address.
package parceldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/sijms/go-ora/v2"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("parceldb: invalid table name")

// SourceName tags leads read from the snapshot.
const SourceName = "parcel_snapshot"

// addressCandidates caps the rows read for one address lookup.
const addressCandidates = 50

var tablePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_$#]*(\.[A-Za-z][A-Za-z0-9_$#]*)?$`)

const columns = `
	PARCEL, SITUS_ADDRESS, SITUS_CITY, SITUS_ZIP, OWNER_NAME,
	MAIL_ADDRESS, MAIL_CITY, MAIL_STATE, MAIL_ZIP, USE_CODE,
	LIVING_AREA, YEAR_BUILT, BEDROOMS, BATHROOMS, LOT_ACRES,
	FULL_CASH_VALUE, LAST_SALE_DATE, LAST_SALE_PRICE, LATITUDE, LONGITUDE,
	SUBDIVISION`

// dsn builds a properly encoded connection string for Oracle Autonomous Database.
func dsn(c config.DBConfig) string {
	if c.WalletLocation != "" {
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet=%s",
			url.PathEscape(c.Username), url.PathEscape(c.Password), c.Host, c.Port, c.Service, url.QueryEscape(c.WalletLocation))
	}
	return (&url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Service,
		RawQuery: "ssl=true",
	}).String()
}

// Store queries the snapshot table.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects and pings the database.
func Open(ctx context.Context, c config.DBConfig) (*Store, error) {
	db, err := sql.Open("oracle", dsn(c))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := New(db, c.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle.
func New(db *sql.DB, table string) (*Store, error) {
	if table == "" {
		table = "PARCELS"
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Store{db: db, table: strings.ToUpper(table)}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LookupAddress returns the parcel at a street address, or (nil, nil) when
// there is none. Rows are narrowed in SQL by house number and street name
// and then compared on the normalized street line, so spelling differences
// such as "NORTH" and "N" or "AVENUE" and "AVE" still match.
func (s *Store) LookupAddress(ctx context.Context, addr string) (*types.Lead, error) {
	key := address.Key(addr)
	if key == "" {
		return nil, nil
	}
	number, name := address.Split(key)
	numberLike := "%"
	if number != "" {
		numberLike = number + " %"
	}
	query := `SELECT` + columns + `
		FROM ` + s.table + `
		WHERE UPPER(SITUS_ADDRESS) LIKE :1 AND UPPER(SITUS_ADDRESS) LIKE :2
		FETCH FIRST ` + fmt.Sprint(addressCandidates) + ` ROWS ONLY`
	rows, err := s.db.QueryContext(ctx, query, numberLike, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query parcel: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parcel: %w", err)
		}
		if address.Key(l.Address) == key {
			return l, nil
		}
	}
	return nil, rows.Err()
}

// LookupParcel returns the parcel with the given APN, or (nil, nil).
func (s *Store) LookupParcel(ctx context.Context, apn string) (*types.Lead, error) {
	apn = strings.TrimSpace(apn)
	if apn == "" {
		return nil, nil
	}
	query := `SELECT` + columns + `
		FROM ` + s.table + `
		WHERE PARCEL = :1`
	return s.one(ctx, query, apn)
}

// Subdivision returns up to limit parcels of a subdivision; the undervalued
// check uses them as comparables.
func (s *Store) Subdivision(ctx context.Context, name string, limit int) ([]types.Lead, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT` + columns + `
		FROM ` + s.table + `
		WHERE UPPER(SUBDIVISION) = UPPER(:1)
		FETCH FIRST ` + fmt.Sprint(limit) + ` ROWS ONLY`
	rows, err := s.db.QueryContext(ctx, query, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("failed to query subdivision parcels: %w", err)
	}
	defer rows.Close()

	var out []types.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parcel: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) one(ctx context.Context, query string, arg string) (*types.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query parcel: %w", err)
	}
	return l, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*types.Lead, error) {
	var (
		parcel, situs, city, zip, owner             sql.NullString
		mail, mailCity, mailState, mailZip, useCode sql.NullString
		sqft, yearBuilt, beds                       sql.NullInt64
		baths, acres, fullCash                      sql.NullFloat64
		saleDate                                    sql.NullString
		salePrice, lat, lon                         sql.NullFloat64
		subdivision                                 sql.NullString
	)
	if err := row.Scan(
		&parcel, &situs, &city, &zip, &owner,
		&mail, &mailCity, &mailState, &mailZip, &useCode,
		&sqft, &yearBuilt, &beds, &baths, &acres,
		&fullCash, &saleDate, &salePrice, &lat, &lon,
		&subdivision,
	); err != nil {
		return nil, err
	}

	l := &types.Lead{
		Source:          SourceName,
		SourceID:        parcel.String,
		ParcelID:        parcel.String,
		Address:         address.Normalize(situs.String),
		City:            strings.ToUpper(strings.TrimSpace(city.String)),
		State:           "AZ",
		Zip:             address.Zip5(zip.String),
		OwnerName:       strings.TrimSpace(owner.String),
		MailingAddress:  strings.TrimSpace(mail.String),
		MailingCity:     strings.TrimSpace(mailCity.String),
		MailingState:    strings.TrimSpace(mailState.String),
		MailingZip:      address.Zip5(mailZip.String),
		PropertyUseCode: strings.TrimSpace(useCode.String),
		LastSaleDate:    strings.TrimSpace(saleDate.String),
		Subdivision:     strings.TrimSpace(subdivision.String),
		SquareFeet:      nullInt(sqft),
		YearBuilt:       nullInt(yearBuilt),
		Bedrooms:        nullInt(beds),
		Bathrooms:       nullFloat(baths),
		LotSize:         nullFloat(acres),
		AssessedValue:   nullFloat(fullCash),
		LastSalePrice:   nullFloat(salePrice),
	}
	if l.Zip != "" {
		l.ZipSource = types.ZipFromProperty
	}
	if lat.Valid && lon.Valid && lat.Float64 != 0 && lon.Float64 != 0 {
		l.SetPoint(lat.Float64, lon.Float64)
	}
	if l.PropertyUseCode != "" {
		l.PropertyType = types.PropertyTypeName(l.PropertyUseCode)
		if types.IsGuestHouseCode(l.PropertyUseCode) {
			l.HasGuestHouse = types.Bool(true)
		}
	}
	l.ID = types.StableID(SourceName, l.ParcelID)
	l.MarkEnriched(types.EnrichedParcel)
	return l, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return types.Int(int(v.Int64))
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return types.Float(v.Float64)
}

// Package runway looks up runway geometry and airport elevation from a
// read-only airports/runways database (OurAirports layout).
package runway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"papi-ng/internal/approach"
)

var ErrNotFound = errors.New("runway not found")

// Lookup is the read-only interface the approach selection depends on.
// Missing rows are reported as found=false, not as errors.
type Lookup interface {
	Runway(ctx context.Context, airport, ident string) (approach.Runway, bool, error)
	AirportElevation(ctx context.Context, airport string) (float64, bool, error)
}

// Store is a Lookup backed by database/sql.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to driver ("sqlite3" or "postgres") and verifies the
// connection.
func Open(driver, dsn string) (*Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported runway database driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("runway database dsn is empty")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open runway database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping runway database: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// bind rewrites ? placeholders to $n for postgres.
func (s *Store) bind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const airportQuery = `SELECT ident, elevation_ft FROM airports
WHERE ident = ? OR icao_code = ? OR iata_code = ? OR gps_code = ? OR local_code = ?
ORDER BY CASE WHEN ident = ? THEN 0 WHEN icao_code = ? THEN 1 ELSE 2 END
LIMIT 1`

// resolveAirport maps any of the airport code columns to the primary ident.
func (s *Store) resolveAirport(ctx context.Context, airport string) (string, sql.NullFloat64, bool, error) {
	code := normalizeCode(airport)
	var ident string
	var elev sql.NullFloat64
	if code == "" {
		return "", elev, false, nil
	}
	err := s.db.QueryRowContext(ctx, s.bind(airportQuery), code, code, code, code, code, code, code).Scan(&ident, &elev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", elev, false, nil
	}
	if err != nil {
		return "", elev, false, fmt.Errorf("query airport %s: %w", code, err)
	}
	return ident, elev, true, nil
}

func (s *Store) AirportElevation(ctx context.Context, airport string) (float64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, fmt.Errorf("runway store is nil")
	}
	_, elev, found, err := s.resolveAirport(ctx, airport)
	if err != nil || !found || !elev.Valid {
		return 0, false, err
	}
	return elev.Float64, true, nil
}

const runwayQuery = `SELECT airport_ident, ident, length_ft, width_ft, latitude_deg, longitude_deg,
elevation_ft, heading_degT, displaced_threshold_ft
FROM runways WHERE airport_ident = ? AND ident = ?`

func (s *Store) Runway(ctx context.Context, airport, ident string) (approach.Runway, bool, error) {
	if s == nil || s.db == nil {
		return approach.Runway{}, false, fmt.Errorf("runway store is nil")
	}
	apt, _, found, err := s.resolveAirport(ctx, airport)
	if err != nil || !found {
		return approach.Runway{}, false, err
	}
	rwyIdent := normalizeCode(ident)

	var (
		rwy             approach.Runway
		length, width   sql.NullInt64
		elev, heading   sql.NullFloat64
		displacedThresh sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx, s.bind(runwayQuery), apt, rwyIdent).Scan(
		&rwy.Airport, &rwy.Ident, &length, &width, &rwy.LatDeg, &rwy.LonDeg,
		&elev, &heading, &displacedThresh)
	if errors.Is(err, sql.ErrNoRows) {
		return approach.Runway{}, false, nil
	}
	if err != nil {
		return approach.Runway{}, false, fmt.Errorf("query runway %s/%s: %w", apt, rwyIdent, err)
	}
	if length.Valid {
		v := int(length.Int64)
		rwy.LengthFt = &v
	}
	if width.Valid {
		v := int(width.Int64)
		rwy.WidthFt = &v
	}
	if elev.Valid {
		v := elev.Float64
		rwy.ElevationFt = &v
	}
	if heading.Valid {
		v := heading.Float64
		rwy.TrueHeadingDeg = &v
	}
	if displacedThresh.Valid {
		rwy.DisplacedThresholdFt = displacedThresh.Float64
	}
	return rwy, true, nil
}

// Runways lists the runway idents at airport, sorted.
func (s *Store) Runways(ctx context.Context, airport string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("runway store is nil")
	}
	apt, _, found, err := s.resolveAirport(ctx, airport)
	if err != nil || !found {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT ident FROM runways WHERE airport_ident = ? ORDER BY ident`), apt)
	if err != nil {
		return nil, fmt.Errorf("list runways %s: %w", apt, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan runway: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

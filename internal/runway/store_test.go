package runway

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"papi-ng/internal/approach"
)

const testSchema = `
CREATE TABLE airports (
	ident TEXT PRIMARY KEY,
	name TEXT,
	iata_code TEXT,
	latitude_deg REAL,
	longitude_deg REAL,
	elevation_ft INTEGER,
	local_code TEXT,
	gps_code TEXT,
	icao_code TEXT
);
CREATE TABLE runways (
	airport_ident TEXT,
	ident TEXT,
	length_ft INTEGER,
	width_ft INTEGER,
	latitude_deg REAL,
	longitude_deg REAL,
	elevation_ft INTEGER,
	heading_degT REAL,
	displaced_threshold_ft INTEGER,
	PRIMARY KEY (airport_ident, ident)
);
INSERT INTO airports VALUES ('KPDX','Portland International','PDX',45.5887,-122.5975,31,'PDX','KPDX','KPDX');
INSERT INTO airports VALUES ('0S9','Jefferson County International',NULL,48.0538,-122.8106,108,'0S9',NULL,NULL);
INSERT INTO airports VALUES ('XNOE','No Elevation',NULL,10,10,NULL,NULL,NULL,NULL);
INSERT INTO runways VALUES ('KPDX','10R',9825,150,45.5692,-122.6040,20,100.4,300);
INSERT INTO runways VALUES ('KPDX','28L',9825,150,45.5633,-122.5660,NULL,280.4,0);
INSERT INTO runways VALUES ('0S9','09',3000,75,48.0539,-122.8170,NULL,NULL,0);
INSERT INTO runways VALUES ('XNOE','18',NULL,NULL,10.01,10,NULL,180,0);
`

func writeTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aviation.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return path
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", writeTestDB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open("sqlite3", " "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestBind_Postgres(t *testing.T) {
	s := &Store{driver: "postgres"}
	got := s.bind("a = ? AND b = ?")
	if got != "a = $1 AND b = $2" {
		t.Fatalf("bind=%q", got)
	}
	s.driver = "sqlite3"
	if got := s.bind("a = ?"); got != "a = ?" {
		t.Fatalf("bind=%q", got)
	}
}

func TestStore_Runway(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rwy, found, err := s.Runway(ctx, "kpdx", " 10r ")
	if err != nil || !found {
		t.Fatalf("Runway found=%v err=%v", found, err)
	}
	if rwy.Airport != "KPDX" || rwy.Ident != "10R" {
		t.Fatalf("rwy=%+v", rwy)
	}
	if rwy.ElevationFt == nil || *rwy.ElevationFt != 20 {
		t.Fatalf("elevation=%v want 20", rwy.ElevationFt)
	}
	if rwy.TrueHeadingDeg == nil || *rwy.TrueHeadingDeg != 100.4 {
		t.Fatalf("heading=%v want 100.4", rwy.TrueHeadingDeg)
	}
	if rwy.DisplacedThresholdFt != 300 || rwy.LengthFt == nil || *rwy.LengthFt != 9825 {
		t.Fatalf("rwy=%+v", rwy)
	}

	// Resolved through the IATA code.
	if _, found, err := s.Runway(ctx, "PDX", "28L"); err != nil || !found {
		t.Fatalf("IATA lookup found=%v err=%v", found, err)
	}

	rwy, found, err = s.Runway(ctx, "0S9", "09")
	if err != nil || !found {
		t.Fatalf("0S9 found=%v err=%v", found, err)
	}
	if rwy.ElevationFt != nil || rwy.TrueHeadingDeg != nil {
		t.Fatalf("nullable columns should be absent: %+v", rwy)
	}
}

func TestStore_Missing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, found, err := s.Runway(ctx, "KPDX", "03"); err != nil || found {
		t.Fatalf("found=%v err=%v want not found", found, err)
	}
	if _, found, err := s.Runway(ctx, "ZZZZ", "10R"); err != nil || found {
		t.Fatalf("found=%v err=%v want not found", found, err)
	}
	if _, found, err := s.AirportElevation(ctx, "XNOE"); err != nil || found {
		t.Fatalf("found=%v err=%v want no elevation", found, err)
	}
}

func TestStore_AirportElevationAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	elev, found, err := s.AirportElevation(ctx, "PDX")
	if err != nil || !found || elev != 31 {
		t.Fatalf("elev=%v found=%v err=%v", elev, found, err)
	}
	ids, err := s.Runways(ctx, "KPDX")
	if err != nil {
		t.Fatalf("Runways: %v", err)
	}
	if len(ids) != 2 || ids[0] != "10R" || ids[1] != "28L" {
		t.Fatalf("ids=%v", ids)
	}
}

func TestSelect_ElevationPrecedence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rwy, tgt, err := Select(ctx, s, "KPDX", "10R", 1000)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tgt.ElevationFt != 20 {
		t.Fatalf("elevation=%v want runway 20", tgt.ElevationFt)
	}
	lat, lon := approach.Project(rwy, 300, 1000)
	if tgt.LatDeg != lat || tgt.LonDeg != lon {
		t.Fatalf("target not projected by displaced threshold + offset")
	}

	_, tgt, err = Select(ctx, s, "KPDX", "28L", 0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tgt.ElevationFt != 31 {
		t.Fatalf("elevation=%v want airport 31", tgt.ElevationFt)
	}

	// No heading: the target is the runway coordinate itself.
	rwy, tgt, err = Select(ctx, s, "0S9", "09", 500)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tgt.LatDeg != rwy.LatDeg || tgt.LonDeg != rwy.LonDeg || tgt.ElevationFt != 108 {
		t.Fatalf("tgt=%+v", tgt)
	}
}

func TestSelect_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, _, err := Select(ctx, s, "KPDX", "99", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if _, _, err := Select(ctx, s, "XNOE", "18", 0); err == nil {
		t.Fatalf("expected no-elevation error")
	}
	if _, _, err := Select(ctx, nil, "KPDX", "10R", 0); err == nil {
		t.Fatalf("expected nil lookup error")
	}
}

type countingLookup struct {
	runways, elevs int
}

func (c *countingLookup) Runway(ctx context.Context, airport, ident string) (approach.Runway, bool, error) {
	c.runways++
	if ident == "ERR" {
		return approach.Runway{}, false, errors.New("boom")
	}
	if ident != "10R" {
		return approach.Runway{}, false, nil
	}
	return approach.Runway{Airport: airport, Ident: ident, LatDeg: 1, LonDeg: 2}, true, nil
}

func (c *countingLookup) AirportElevation(ctx context.Context, airport string) (float64, bool, error) {
	c.elevs++
	return 42, true, nil
}

func TestCached_MemoizesHitsAndMisses(t *testing.T) {
	next := &countingLookup{}
	c := NewCached(next, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, found, _ := c.Runway(ctx, "KPDX", "10R"); !found {
			t.Fatalf("lookup %d not found", i)
		}
		if _, found, _ := c.Runway(ctx, "KPDX", "01"); found {
			t.Fatalf("miss %d reported found", i)
		}
	}
	// Keys are normalized.
	if _, found, _ := c.Runway(ctx, " kpdx", "10r "); !found {
		t.Fatalf("normalized key missed cache")
	}
	if next.runways != 2 {
		t.Fatalf("underlying runway calls=%d want 2", next.runways)
	}

	for i := 0; i < 3; i++ {
		ft, found, err := c.AirportElevation(ctx, "KPDX")
		if err != nil || !found || ft != 42 {
			t.Fatalf("elev=%v found=%v err=%v", ft, found, err)
		}
	}
	if next.elevs != 1 {
		t.Fatalf("underlying elevation calls=%d want 1", next.elevs)
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	next := &countingLookup{}
	c := NewCached(next, 8, time.Minute)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, _, err := c.Runway(ctx, "KPDX", "ERR"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.runways != 2 {
		t.Fatalf("underlying calls=%d want 2", next.runways)
	}
}

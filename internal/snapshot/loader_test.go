package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileServesEmpty(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope.json"))
	snap, version := l.Load(context.Background())

	if version != 0 {
		t.Errorf("Expected version 0 for missing file, got %d", version)
	}
	if snap.Day != "-" || snap.UpdatedAt != "-" || snap.RowCount != 0 {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
	if snap.Rows == nil || len(snap.Rows) != 0 {
		t.Error("Expected non-nil empty rows")
	}
}

func TestLoadMalformedFileServesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, version := NewLoader(path).Load(context.Background())
	if version != 0 || snap.Day != "-" {
		t.Errorf("Expected empty snapshot for malformed file, got version=%d day=%s", version, snap.Day)
	}
}

func TestLoadParsesRowsAndTolerantNumerics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	body := `{
		"day": "2025-07-14",
		"updated_at": "2025-07-14T11:00:00",
		"row_count": 2,
		"rows": [
			{"symbol":"NSE|2885","tsym":"RELIANCE","exchange":"NSE","ltp":2855.5,"volume":1000,
			 "first_5m_close":2840.0,"fetch_done":true},
			{"symbol":"NSE|1594","tsym":"INFY","exchange":"NSE","ltp":null,"volume":"",
			 "first_5m_close":"1500.25","fetch_done":false}
		],
		"status": {"ws_open": true}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, version := NewLoader(path).Load(context.Background())
	if version == 0 {
		t.Fatal("Expected nonzero version")
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(snap.Rows))
	}

	r0 := snap.Rows[0]
	if !r0.LTP.Valid || r0.LTP.V != 2855.5 {
		t.Errorf("Row 0 ltp: %+v", r0.LTP)
	}
	r1 := snap.Rows[1]
	if r1.LTP.Valid {
		t.Error("null ltp must decode as invalid")
	}
	if r1.Volume.Valid {
		t.Error("empty-string volume must decode as invalid")
	}
	if !r1.First5mClose.Valid || r1.First5mClose.V != 1500.25 {
		t.Errorf("string first_5m_close must parse, got %+v", r1.First5mClose)
	}
	if len(snap.Status) == 0 {
		t.Error("status block must pass through")
	}
}

func TestLoadCachesByMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(path, []byte(`{"day":"2025-07-14","rows":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(path)

	s1, v1 := l.Load(context.Background())
	s2, v2 := l.Load(context.Background())
	if v1 != v2 {
		t.Errorf("Expected stable version, got %d vs %d", v1, v2)
	}
	if s1 != s2 {
		t.Error("Expected the cached pointer on unchanged mtime")
	}

	// A rewrite with a newer mtime must invalidate the cache.
	future := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte(`{"day":"2025-07-15","rows":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	s3, v3 := l.Load(context.Background())
	if v3 == v1 {
		t.Error("Expected new version after rewrite")
	}
	if s3.Day != "2025-07-15" {
		t.Errorf("Expected reloaded content, got day=%s", s3.Day)
	}
}

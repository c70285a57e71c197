package levels

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"b5-trader/internal/snapshot"
)

func writeSnap(t *testing.T, path, day string, mtime time.Time) {
	t.Helper()
	body := `{"day":"` + day + `","updated_at":"x","row_count":1,"rows":[
		{"symbol":"NSE|1","tsym":"A","exchange":"NSE","ltp":100.9,"volume":1000,
		 "first_5m_close":100,"fetch_done":true}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestServiceMemoizesPerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	writeSnap(t, path, "2025-07-14", time.Now())

	svc := NewService(snapshot.NewLoader(path))
	opts := testOpts()

	res1, _, v1 := svc.Rows(context.Background(), opts)
	res2, _, v2 := svc.Rows(context.Background(), opts)
	if v1 != v2 {
		t.Fatalf("version changed without rewrite: %d vs %d", v1, v2)
	}
	if res1 != res2 {
		t.Error("expected memoized result pointer for same (version, config)")
	}

	// A different config computes separately under the same version.
	opts2 := opts
	opts2.Timeframe = "1m"
	res3, _, _ := svc.Rows(context.Background(), opts2)
	if res3 == res1 {
		t.Error("distinct configs must not share a cache entry")
	}
}

func TestServicePurgesOnVersionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	writeSnap(t, path, "2025-07-14", time.Now().Add(-2*time.Second))

	svc := NewService(snapshot.NewLoader(path))
	opts := testOpts()

	res1, _, v1 := svc.Rows(context.Background(), opts)

	writeSnap(t, path, "2025-07-14", time.Now().Add(2*time.Second))
	res2, _, v2 := svc.Rows(context.Background(), opts)

	if v2 == v1 {
		t.Fatal("expected a new snapshot version")
	}
	if res2 == res1 {
		t.Error("expected recompute after version change")
	}
}

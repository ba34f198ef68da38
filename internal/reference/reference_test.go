package reference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geoingest/internal/transformer"
)

func TestMadridStations(t *testing.T) {
	t.Parallel()

	if len(MadridStations) != 24 {
		t.Fatalf("len=%d, want 24 stations", len(MadridStations))
	}
	for _, k := range MadridStations.Keys() {
		e := MadridStations[k]
		if !strings.HasPrefix(k, "28079") || len(k) != 8 {
			t.Fatalf("unexpected station code %q", k)
		}
		if e.Name == "" || !e.Location.Valid() {
			t.Fatalf("station %s: bad entry %+v", k, e)
		}
		// Madrid sits west of Greenwich and north of the equator.
		if e.Location.Lon() >= 0 || e.Location.Lat() <= 40 {
			t.Fatalf("station %s: location %v not in [lon, lat] order", k, e.Location)
		}
	}

	e, ok := MadridStations.Lookup("28079060")
	if !ok || e.Name != "Tres Olivos" {
		t.Fatalf("Lookup(28079060)=%+v,%v", e, ok)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"A1": {"name": "Alpha", "location": [2.35, 48.85]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	badLoc := filepath.Join(dir, "bad_loc.json")
	if err := os.WriteFile(badLoc, []byte(`{"A1": {"name": "Alpha", "location": [48.85, 200]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	badJSON := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badJSON, []byte(`{"A1": `), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		table    string
		path     string
		wantErr  string
		wantKey  string
		wantName string
	}{
		{name: "builtin", table: "madrid-stations", wantKey: "28079004", wantName: "Pza. de España"},
		{name: "unknown_builtin", table: "nope", wantErr: "unknown reference table"},
		{name: "file_wins_over_name", table: "madrid-stations", path: good, wantKey: "A1", wantName: "Alpha"},
		{name: "invalid_location", path: badLoc, wantErr: "invalid location"},
		{name: "invalid_json", path: badJSON, wantErr: "decode reference table"},
		{name: "missing_file", path: filepath.Join(dir, "nope.json"), wantErr: "read reference table"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tbl, err := Open(tc.table, tc.path)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err=%v, want contains %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			e, ok := tbl.Lookup(tc.wantKey)
			if !ok || e.Name != tc.wantName {
				t.Fatalf("Lookup(%q)=%+v,%v", tc.wantKey, e, ok)
			}
		})
	}
}

var _ transformer.ReferenceTable = Table(nil)

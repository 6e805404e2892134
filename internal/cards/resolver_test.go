package cards

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func newTestResolver(t *testing.T, baseURL string, seed map[string]string) *Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card_map.json")
	if seed != nil {
		data, err := json.Marshal(seed)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	r := Load(path)
	r.baseURL = baseURL
	r.delay = 0
	return r
}

func TestNameCacheHitNeverCallsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		http.NotFound(w, req)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, map[string]string{"555": "Lightning Bolt"})

	if got := r.Name(555); got != "Lightning Bolt" {
		t.Errorf("Name(555) = %q, want cached name", got)
	}
	if calls.Load() != 0 {
		t.Errorf("network called %d times for a cache hit", calls.Load())
	}
}

func TestNameResolvesDirectAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/cards/arena/777" {
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "Opt"})
			return
		}
		http.NotFound(w, req)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, nil)
	if got := r.Name(777); got != "Opt" {
		t.Fatalf("Name(777) = %q, want %q", got, "Opt")
	}

	// A fresh resolver over the same file must see the persisted name.
	again := Load(r.path)
	again.baseURL = "http://127.0.0.1:0" // network must not be needed
	if got := again.Name(777); got != "Opt" {
		t.Errorf("persisted Name(777) = %q, want %q", got, "Opt")
	}
}

func TestNameFallsBackToSearch(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/cards/arena/", http.NotFound)
	page := 0
	mux.HandleFunc("/cards/search", func(w http.ResponseWriter, req *http.Request) {
		if page == 0 {
			page++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":      []map[string]any{{"arena_id": 1, "name": "Wrong Card"}},
				"has_more":  true,
				"next_page": srvURL + "/cards/search?page=2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"arena_id": 888, "name": "Counterspell"}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	r := newTestResolver(t, srv.URL, nil)
	if got := r.Name(888); got != "Counterspell" {
		t.Errorf("Name(888) = %q, want paginated search result", got)
	}
}

func TestNameRecordsUnknownSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, nil)
	if got := r.Name(999); got != "Unknown(999)" {
		t.Errorf("Name(999) = %q, want sentinel", got)
	}
}

func TestResolveAllFetchesOnlyUnknowns(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		var id int64
		if _, err := fmt.Sscanf(req.URL.Path, "/cards/arena/%d", &id); err == nil {
			_ = json.NewEncoder(w).Encode(map[string]string{"name": fmt.Sprintf("Card %d", id)})
			return
		}
		http.NotFound(w, req)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, map[string]string{
		"1": "Known Card",
		"2": "Unknown(2)", // sentinel: should be retried
	})

	r.ResolveAll([]int64{1, 2, 3, 3, 0})

	if calls.Load() != 2 {
		t.Errorf("network called %d times, want 2 (retry sentinel + new id, dedup 3)", calls.Load())
	}
	if got := r.Name(2); got != "Card 2" {
		t.Errorf("sentinel not repaired: %q", got)
	}
	if got := r.Name(3); got != "Card 3" {
		t.Errorf("Name(3) = %q", got)
	}
}

func TestUnknownHelpers(t *testing.T) {
	ids := UnknownIDs("opening hand: Unknown(11), Opt, Unknown(22)")
	if len(ids) != 2 || ids[0] != 11 || ids[1] != 22 {
		t.Errorf("UnknownIDs = %v", ids)
	}

	r := newTestResolver(t, "http://127.0.0.1:0", map[string]string{"11": "Shock"})
	got := r.ReplaceUnknowns("cast Unknown(11) twice")
	if got != "cast Shock twice" {
		t.Errorf("ReplaceUnknowns = %q", got)
	}
}

func TestBulkImport(t *testing.T) {
	// Build an AllPrintings zip with one arena card.
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	f, err := zw.Create("AllPrintings.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte(`{"data":{"XYZ":{"cards":[
		{"name":"Giant Growth","identifiers":{"mtgArenaId":"70001"}},
		{"name":"No Arena Card","identifiers":{}}
	]}}}`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/allprintings.zip", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(zipBuf.Bytes())
	})
	mux.HandleFunc("/bulk-data", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"type": "rulings", "download_uri": srvURL + "/nope"},
				{"type": "default_cards", "download_uri": srvURL + "/default_cards.json"},
			},
		})
	})
	mux.HandleFunc("/default_cards.json", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"arena_id": 70002, "name": "Dark Ritual"},
			{"arena_id": 70001, "name": "Giant Growth (dup)"}, // first-seen name must win
			{"name": "No Arena Id"},
			{"arena_id": 70003, "name": "Unknown Fix"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	overrides := filepath.Join(t.TempDir(), "manual_overrides.json")
	if err := os.WriteFile(overrides, []byte(`{"70004":"Manual Card"}`), 0644); err != nil {
		t.Fatal(err)
	}

	// Pre-seed one real name and one sentinel.
	r := newTestResolver(t, "http://127.0.0.1:0", map[string]string{
		"70002": "Cached Ritual",
		"70003": "Unknown(70003)",
	})

	im := &Importer{
		MTGJSONURL:      srv.URL + "/allprintings.zip",
		ScryfallBulkURL: srv.URL + "/bulk-data",
		Client:          srv.Client(),
	}
	added, err := im.Run(r, overrides)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3 (70001 new, 70003 repaired, 70004 manual)", added)
	}

	checks := map[int64]string{
		70001: "Giant Growth", // mtgjson first, bulk duplicate ignored
		70002: "Cached Ritual",
		70003: "Unknown Fix",
		70004: "Manual Card",
	}
	for id, want := range checks {
		if got := r.Name(id); got != want {
			t.Errorf("Name(%d) = %q, want %q", id, got, want)
		}
	}
}

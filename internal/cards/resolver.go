// Package cards resolves opaque arena card ids to display names. The
// resolver consults a local JSON cache first and falls back to the
// Scryfall API, persisting anything it learns so a card is looked up
// over the network at most once.
package cards

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"
)

const (
	defaultScryfallBase = "https://api.scryfall.com"
	userAgent           = "mtga-historian/1.0 (+discord-bot)"
)

var unknownRe = regexp.MustCompile(`Unknown\((\d+)\)`)

// UnknownName returns the sentinel recorded when a card id cannot be
// resolved from any source. The id stays visible so a later repair pass
// can find and re-resolve it.
func UnknownName(id int64) string {
	return fmt.Sprintf("Unknown(%d)", id)
}

// UnknownIDs extracts the card ids of every Unknown(<id>) sentinel
// embedded in s.
func UnknownIDs(s string) []int64 {
	var ids []int64
	for _, m := range unknownRe.FindAllStringSubmatch(s, -1) {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReplaceUnknowns rewrites every Unknown(<id>) sentinel in s with the
// resolver's current name for that id.
func (r *Resolver) ReplaceUnknowns(s string) string {
	return unknownRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := unknownRe.FindStringSubmatch(m)
		id, err := strconv.ParseInt(sub[1], 10, 64)
		if err != nil {
			return m
		}
		return r.Name(id)
	})
}

// Resolver maps card ids to names. Safe for concurrent readers; the
// cache file is written atomically on every newly learned name.
type Resolver struct {
	path    string
	client  *http.Client
	baseURL string
	delay   time.Duration

	mu    sync.RWMutex
	names map[string]string // decimal card id -> name (cache file format)
}

// Load reads the cache file at path, starting empty when the file is
// missing or unreadable.
func Load(path string) *Resolver {
	r := &Resolver{
		path:    path,
		client:  &http.Client{Timeout: 12 * time.Second},
		baseURL: defaultScryfallBase,
		delay:   50 * time.Millisecond,
		names:   make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return r
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("card cache %s unreadable, starting empty: %v", path, err)
		return r
	}
	r.names = m
	return r
}

// Count returns the number of cached names.
func (r *Resolver) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// cached returns the cached name for id and whether it is usable
// (present, non-empty, and not an Unknown sentinel).
func (r *Resolver) cached(id int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := r.names[strconv.FormatInt(id, 10)]
	return name, name != "" && !unknownRe.MatchString(name)
}

// Put stores a name without consulting the network. Used by the bulk
// importer and the repair pass.
func (r *Resolver) Put(id int64, name string) {
	r.mu.Lock()
	r.names[strconv.FormatInt(id, 10)] = name
	r.mu.Unlock()
}

// Name resolves one card id: cache first, then Scryfall. A failed
// lookup records and returns the Unknown(<id>) sentinel instead of an
// error so the pipeline never stalls on one card.
func (r *Resolver) Name(id int64) string {
	if name, ok := r.cached(id); ok {
		return name
	}

	name := r.fetch(id)
	if name == "" {
		name = UnknownName(id)
	}
	r.Put(id, name)
	if err := r.Save(); err != nil {
		log.Printf("card cache save: %v", err)
	}
	return name
}

// ResolveAll resolves every id not yet usable in the cache, with a
// small delay between network calls to respect rate limits, and writes
// the cache once at the end. Duplicate ids are fetched once.
func (r *Resolver) ResolveAll(ids []int64) {
	seen := make(map[int64]bool)
	dirty := false
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.cached(id); ok {
			continue
		}
		name := r.fetch(id)
		if name == "" {
			name = UnknownName(id)
		}
		r.Put(id, name)
		dirty = true
		if r.delay > 0 {
			time.Sleep(r.delay)
		}
	}
	if dirty {
		if err := r.Save(); err != nil {
			log.Printf("card cache save: %v", err)
		}
	}
}

// Save writes the cache atomically (temp file + rename) so a crash
// mid-write cannot corrupt it.
func (r *Resolver) Save() error {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.names, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal card cache: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// fetch tries the direct arena-id endpoint, then the search endpoint.
// Returns "" when every source fails.
func (r *Resolver) fetch(id int64) string {
	if name := r.fetchDirect(id); name != "" {
		return name
	}
	return r.fetchSearch(id)
}

func (r *Resolver) get(rawURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return r.client.Do(req)
}

func (r *Resolver) fetchDirect(id int64) string {
	resp, err := r.get(fmt.Sprintf("%s/cards/arena/%d", r.baseURL, id))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var card struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return ""
	}
	return card.Name
}

func (r *Resolver) fetchSearch(id int64) string {
	params := url.Values{
		"q":                    {fmt.Sprintf("arena:%d OR arena_id:%d", id, id)},
		"unique":               {"prints"},
		"order":                {"released"},
		"include_extras":       {"true"},
		"include_variations":   {"true"},
		"include_multilingual": {"true"},
	}
	next := r.baseURL + "/cards/search?" + params.Encode()

	for next != "" {
		resp, err := r.get(next)
		if err != nil {
			return ""
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return ""
		}

		var page struct {
			Data []struct {
				ArenaID int64  `json:"arena_id"`
				Name    string `json:"name"`
			} `json:"data"`
			HasMore  bool   `json:"has_more"`
			NextPage string `json:"next_page"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return ""
		}

		for _, c := range page.Data {
			if c.ArenaID == id {
				return c.Name
			}
		}

		if page.HasMore && page.NextPage != "" {
			next = page.NextPage
			continue
		}
		next = ""
	}
	return ""
}

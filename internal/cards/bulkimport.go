package cards

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultMTGJSONURL      = "https://mtgjson.com/api/v5/AllPrintings.json.zip"
	defaultScryfallBulkURL = "https://api.scryfall.com/bulk-data"
)

// Importer seeds the card-name cache from the two bulk reference
// datasets plus a local manual-overrides file. Every entry goes through
// put, which keeps names already in the cache unless they are
// Unknown(...) sentinels.
type Importer struct {
	MTGJSONURL      string
	ScryfallBulkURL string
	Client          *http.Client
}

// NewImporter returns an importer pointed at the public datasets.
func NewImporter() *Importer {
	return &Importer{
		MTGJSONURL:      defaultMTGJSONURL,
		ScryfallBulkURL: defaultScryfallBulkURL,
		Client:          &http.Client{Timeout: 5 * time.Minute},
	}
}

// Run imports into r, merges overrides from overridesPath (skipped if
// the file is absent), and saves the cache once. Returns the number of
// entries added or repaired. A dataset that cannot be fetched is logged
// and skipped; Run only fails when nothing could be imported at all.
func (im *Importer) Run(r *Resolver, overridesPath string) (int, error) {
	added := 0
	sources := 0

	n, err := im.importMTGJSON(r)
	if err != nil {
		log.Printf("mtgjson import failed, skipping: %v", err)
	} else {
		log.Printf("mtgjson: %d names", n)
		added += n
		sources++
	}

	n, err = im.importScryfallBulk(r)
	if err != nil {
		log.Printf("scryfall bulk import failed, skipping: %v", err)
	} else {
		log.Printf("scryfall default_cards: %d names", n)
		added += n
		sources++
	}

	n, err = importOverrides(r, overridesPath)
	if err != nil {
		log.Printf("manual overrides skipped: %v", err)
	} else if n > 0 {
		log.Printf("manual overrides: %d names", n)
		added += n
		sources++
	}

	if sources == 0 {
		return 0, fmt.Errorf("no dataset could be imported")
	}
	if err := r.Save(); err != nil {
		return added, fmt.Errorf("save card cache: %w", err)
	}
	return added, nil
}

// put merges one name into the cache, preserving real names already
// learned. Returns 1 when the entry was added or repaired.
func put(r *Resolver, id int64, name string) int {
	if name == "" {
		return 0
	}
	if existing, ok := r.cached(id); ok && existing != "" {
		return 0
	}
	r.Put(id, name)
	return 1
}

func (im *Importer) get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := im.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp, nil
}

// importMTGJSON downloads the AllPrintings zip and maps every card with
// an arena identifier to its name.
func (im *Importer) importMTGJSON(r *Resolver) (int, error) {
	resp, err := im.get(im.MTGJSONURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("download mtgjson: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return 0, fmt.Errorf("open mtgjson zip: %w", err)
	}

	var jsonFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".json") {
			jsonFile = f
			break
		}
	}
	if jsonFile == nil {
		return 0, fmt.Errorf("no .json inside mtgjson zip")
	}

	rc, err := jsonFile.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", jsonFile.Name, err)
	}
	defer rc.Close()

	var printings struct {
		Data map[string]struct {
			Cards []struct {
				Name        string            `json:"name"`
				Identifiers map[string]string `json:"identifiers"`
			} `json:"cards"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rc).Decode(&printings); err != nil {
		return 0, fmt.Errorf("decode AllPrintings: %w", err)
	}

	added := 0
	for _, set := range printings.Data {
		for _, c := range set.Cards {
			id := arenaID(c.Identifiers)
			if id == 0 || c.Name == "" {
				continue
			}
			added += put(r, id, c.Name)
		}
	}
	return added, nil
}

// arenaID digs the arena id out of an MTGJSON identifiers block, which
// has used several key names over time.
func arenaID(identifiers map[string]string) int64 {
	for _, key := range []string{"mtgArenaId", "arenaId", "mtgaId"} {
		if v := identifiers[key]; v != "" {
			var id int64
			if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
				return id
			}
		}
	}
	return 0
}

// importScryfallBulk finds the default_cards dataset in the Scryfall
// bulk-data listing and merges every card carrying an arena_id.
func (im *Importer) importScryfallBulk(r *Resolver) (int, error) {
	resp, err := im.get(im.ScryfallBulkURL)
	if err != nil {
		return 0, err
	}

	var listing struct {
		Data []struct {
			Type        string `json:"type"`
			DownloadURI string `json:"download_uri"`
		} `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()
	if err != nil {
		return 0, fmt.Errorf("decode bulk listing: %w", err)
	}

	downloadURI := ""
	for _, d := range listing.Data {
		if d.Type == "default_cards" {
			downloadURI = d.DownloadURI
			break
		}
	}
	if downloadURI == "" {
		return 0, fmt.Errorf("default_cards not present in bulk listing")
	}

	resp, err = im.get(downloadURI)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var bulk []struct {
		ArenaID int64  `json:"arena_id"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulk); err != nil {
		return 0, fmt.Errorf("decode default_cards: %w", err)
	}

	added := 0
	for _, c := range bulk {
		if c.ArenaID == 0 {
			continue
		}
		added += put(r, c.ArenaID, c.Name)
	}
	return added, nil
}

// importOverrides merges a local id -> name JSON file. A missing file
// is not an error; it simply contributes nothing.
func importOverrides(r *Resolver, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}

	added := 0
	for key, name := range overrides {
		var id int64
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil || id == 0 {
			continue
		}
		added += put(r, id, name)
	}
	return added, nil
}

// Package history persists one summary record per finished match to a
// JSON collection file. Writes are atomic (temp file + rename) so a
// crash mid-write never corrupts the collection.
package history

import (
	"encoding/json"
	"fmt"
	"os"
)

// DeckEntry is one (quantity, card name) pair of a decklist.
// It marshals as a two-element array to keep the file compact.
type DeckEntry struct {
	Quantity int
	Name     string
}

// MarshalJSON encodes the entry as [quantity, name].
func (e DeckEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Quantity, e.Name})
}

// UnmarshalJSON decodes [quantity, name].
func (e *DeckEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &e.Quantity); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Name)
}

// Decklist is the player's deck snapshot, main and sideboard.
type Decklist struct {
	Main []DeckEntry `json:"main"`
	Side []DeckEntry `json:"side"`
}

// Play is one entry of a match's chronological play log.
type Play struct {
	Time string `json:"t"`
	Who  string `json:"who"`
	Card string `json:"card"`
	Zone string `json:"zone"`
}

// Match is one persisted match summary.
type Match struct {
	ID             string    `json:"id"`
	Result         string    `json:"result"`
	Time           string    `json:"time"`
	Format         string    `json:"format"`
	PlayerDeck     string    `json:"player_deck"`
	PlayerDecklist *Decklist `json:"player_decklist"`
	Opponent       string    `json:"opponent"`
	OpponentDeck   string    `json:"opponent_deck"`
	Plays          []Play    `json:"plays"`
}

// Store reads and appends the matches collection at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store over the collection file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns all recorded matches, or an empty slice when the file
// does not exist or cannot be parsed (a corrupt history never blocks a
// new recording).
func (s *Store) Load() []Match {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var matches []Match
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil
	}
	return matches
}

// AppendSummary loads the collection, appends one match, and writes the
// whole file back atomically.
func (s *Store) AppendSummary(m Match) error {
	matches := append(s.Load(), m)
	return s.write(matches)
}

// Rewrite replaces the whole collection (used by the repair pass).
func (s *Store) Rewrite(matches []Match) error {
	return s.write(matches)
}

func (s *Store) write(matches []Match) error {
	data, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

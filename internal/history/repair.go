package history

// NameResolver is the part of the card resolver the repair pass needs.
type NameResolver interface {
	Name(id int64) string
	ResolveAll(ids []int64)
	ReplaceUnknowns(s string) string
}

// UnknownScanner extracts the ids behind Unknown(<id>) placeholders.
type UnknownScanner func(s string) []int64

// Repair scans the collection for Unknown(<id>) placeholders left by
// failed lookups, batch-resolves all of them, rewrites every occurrence
// in place, and saves the collection. Returns the number of distinct
// ids that were re-resolved.
func Repair(s *Store, r NameResolver, scan UnknownScanner) (int, error) {
	matches := s.Load()

	idSet := make(map[int64]bool)
	collect := func(text string) {
		for _, id := range scan(text) {
			idSet[id] = true
		}
	}

	for _, m := range matches {
		collect(m.Result)
		collect(m.PlayerDeck)
		for _, p := range m.Plays {
			collect(p.Card)
		}
		if m.PlayerDecklist != nil {
			for _, e := range m.PlayerDecklist.Main {
				collect(e.Name)
			}
			for _, e := range m.PlayerDecklist.Side {
				collect(e.Name)
			}
		}
	}

	if len(idSet) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	r.ResolveAll(ids)

	for i := range matches {
		m := &matches[i]
		m.Result = r.ReplaceUnknowns(m.Result)
		m.PlayerDeck = r.ReplaceUnknowns(m.PlayerDeck)
		for j := range m.Plays {
			m.Plays[j].Card = r.ReplaceUnknowns(m.Plays[j].Card)
		}
		if m.PlayerDecklist != nil {
			for j := range m.PlayerDecklist.Main {
				m.PlayerDecklist.Main[j].Name = r.ReplaceUnknowns(m.PlayerDecklist.Main[j].Name)
			}
			for j := range m.PlayerDecklist.Side {
				m.PlayerDecklist.Side[j].Name = r.ReplaceUnknowns(m.PlayerDecklist.Side[j].Name)
			}
		}
	}

	if err := s.Rewrite(matches); err != nil {
		return 0, err
	}
	return len(ids), nil
}

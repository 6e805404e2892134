package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mtga-tools/historian/internal/history"
)

// handleRequest processes the nested request payloads of event-join and
// deck-upsert lines. A full decklist takes priority; a bare summary
// still updates the deck name and format.
func (m *Machine) handleRequest(req map[string]any) {
	summary := getMap(req, "Summary")
	deck := getMap(req, "Deck")

	if len(getSlice(deck, "MainDeck")) > 0 || len(getSlice(deck, "Sideboard")) > 0 {
		m.emitDecklist(summary, deck)
	} else if dn := asString(summary["Name"]); dn != "" {
		fmtName := formatAttribute(summary)
		if m.cur.playerDeck != dn || m.cur.format != fmtName {
			m.cur.playerDeck = dn
			m.cur.format = fmtName
			m.notifier.Announce(fmt.Sprintf("🟢 New match: **%s** (%s)", dn, orPlaceholder(fmtName)))
		}
	}

	if v, ok := req["opponentScreenName"]; ok {
		if name := asString(v); name != "" && m.cur.opponent != name {
			m.cur.opponent = name
			m.notifier.Announce(fmt.Sprintf("👤 Opponent: **%s**", name))
		}
	}
}

// formatAttribute pulls the Format value out of a deck summary's
// attribute list.
func formatAttribute(summary map[string]any) string {
	for _, av := range getSlice(summary, "Attributes") {
		a, ok := asMap(av)
		if !ok {
			continue
		}
		if asString(a["name"]) == "Format" {
			return asString(a["value"])
		}
	}
	return ""
}

// emitDecklist resolves and posts the submitted decklist, at most once
// per distinct (name, main, side) submission. Re-submissions of the
// same list, which Arena produces on every sideboard confirm, are
// silently absorbed.
func (m *Machine) emitDecklist(summary, deck map[string]any) {
	sig := deckSignature(summary, deck)
	if sig == m.lastDeckSig {
		return
	}
	m.lastDeckSig = sig

	deckName := asString(summary["Name"])
	if deckName == "" {
		deckName = m.cur.playerDeck
	}
	if deckName == "" {
		deckName = "??"
	}
	fmtName := formatAttribute(summary)

	// Resolve everything in one batch before formatting.
	ids := append(entryIDs(getSlice(deck, "MainDeck")), entryIDs(getSlice(deck, "Sideboard"))...)
	m.resolver.ResolveAll(ids)

	main := m.resolveEntries(getSlice(deck, "MainDeck"))
	side := m.resolveEntries(getSlice(deck, "Sideboard"))

	m.cur.playerDeck = deckName
	m.cur.format = fmtName
	m.cur.playerDecklist = &history.Decklist{Main: main, Side: side}

	m.notifier.PostLong(formatDecklist(deckName, fmtName, main, side))
}

// deckSignature canonicalizes a deck submission for idempotence checks.
func deckSignature(summary, deck map[string]any) string {
	var b strings.Builder
	b.WriteString(asString(summary["Name"]))
	for _, key := range []string{"MainDeck", "Sideboard"} {
		pairs := make([]string, 0, 8)
		for _, ev := range getSlice(deck, key) {
			e, ok := asMap(ev)
			if !ok {
				continue
			}
			id, ok := entryCardID(e)
			if !ok {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%d:%d", id, entryQuantity(e)))
		}
		sort.Strings(pairs)
		b.WriteByte('|')
		b.WriteString(strings.Join(pairs, ","))
	}
	return b.String()
}

func entryCardID(e map[string]any) (int64, bool) {
	if id, ok := asInt64(e["cardId"]); ok && id != 0 {
		return id, true
	}
	if id, ok := asInt64(e["grpId"]); ok && id != 0 {
		return id, true
	}
	return 0, false
}

func entryQuantity(e map[string]any) int {
	if q, ok := asInt64(e["quantity"]); ok {
		return int(q)
	}
	return 1
}

func entryIDs(entries []any) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, ev := range entries {
		e, ok := asMap(ev)
		if !ok {
			continue
		}
		if id, ok := entryCardID(e); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// resolveEntries turns raw deck entries into named, quantity-aggregated
// lines sorted case-insensitively by card name.
func (m *Machine) resolveEntries(entries []any) []history.DeckEntry {
	agg := make(map[string]int)
	order := make([]string, 0, len(entries))
	for _, ev := range entries {
		e, ok := asMap(ev)
		if !ok {
			continue
		}
		id, ok := entryCardID(e)
		if !ok {
			continue
		}
		name := m.resolver.Name(id)
		if _, seen := agg[name]; !seen {
			order = append(order, name)
		}
		agg[name] += entryQuantity(e)
	}
	sort.Slice(order, func(i, j int) bool {
		return strings.ToLower(order[i]) < strings.ToLower(order[j])
	})
	out := make([]history.DeckEntry, 0, len(order))
	for _, name := range order {
		out = append(out, history.DeckEntry{Quantity: agg[name], Name: name})
	}
	return out
}

func formatDecklist(deckName, fmtName string, main, side []history.DeckEntry) string {
	lines := []string{
		fmt.Sprintf("🟢 **Deck:** %s (%s)", deckName, orPlaceholder(fmtName)),
		"**Main**:",
	}
	for _, e := range main {
		lines = append(lines, fmt.Sprintf("%d %s", e.Quantity, e.Name))
	}
	if len(side) > 0 {
		lines = append(lines, "", "**Sideboard**:")
		for _, e := range side {
			lines = append(lines, fmt.Sprintf("%d %s", e.Quantity, e.Name))
		}
	}
	return strings.Join(lines, "\n")
}

// Package match is the session state machine: it consumes the frames
// the extractor pulls out of Player.log, reconstructs the in-progress
// match (deck, opponent, seat, plays), announces events exactly once,
// and persists one summary per match before resetting for the next one.
package match

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mtga-tools/historian/internal/gamestate"
	"github.com/mtga-tools/historian/internal/history"
	"github.com/mtga-tools/historian/internal/logstream"
	"github.com/mtga-tools/historian/internal/store"
)

// NameResolver maps card ids to display names (see internal/cards).
type NameResolver interface {
	Name(id int64) string
	ResolveAll(ids []int64)
}

// Notifier delivers human-readable announcements (see internal/notify).
type Notifier interface {
	Announce(text string)
	PostLong(text string)
}

// SummaryStore persists one record per finished match (see internal/history).
type SummaryStore interface {
	AppendSummary(m history.Match) error
}

// PlayArchive mirrors announcements into the local query archive
// (see internal/store). Best-effort; may be nil.
type PlayArchive interface {
	RecordPlay(matchID, actor, card, zone string, at time.Time) error
	RecordMatch(m store.MatchRecord) error
}

// Config holds the behavior knobs of the machine.
type Config struct {
	// InvertSeat flips the You/Opponent mapping globally, for users
	// whose seat is consistently misdetected.
	InvertSeat bool
	// AnnouncePlays enables per-play notifications (draws are always
	// announced; casts and battlefield entries honor this flag).
	AnnouncePlays bool
}

// playSig identifies one logical play announcement. The play-log length
// is part of the signature on purpose: it loosely distinguishes frames
// that re-describe an old event from genuinely new ones.
type playSig struct {
	cardID  int64
	actor   string
	zone    string
	playIdx int
}

// session is all per-match mutable state. Reset to the zero value after
// every finalize.
type session struct {
	id             string
	format         string
	playerDeck     string
	playerDecklist *history.Decklist
	opponent       string
	opponentDeck   string
	plays          []history.Play
	myTeamID       int64
	hasTeamID      bool
	mySeat         int64 // 0 until learned
	openingEmitted bool
	finished       bool
}

// Machine consumes frames one at a time. It is single-writer by
// construction (the daemon's event loop); the mutex only makes the
// status snapshot safe to read from the IPC goroutine.
type Machine struct {
	cfg       Config
	resolver  NameResolver
	notifier  Notifier
	summaries SummaryStore
	archive   PlayArchive

	mu                sync.Mutex
	index             *gamestate.Index
	cur               session
	seenPlayInstances map[int64]struct{}
	seenPlays         map[playSig]struct{}
	lastDeckSig       string
	// finishedFrame marks that the current frame already finalized a
	// match; the rest of that frame is skipped so post-result noise
	// cannot leak into the fresh session.
	finishedFrame bool
	// lastFinishedID survives the session reset so that a second result
	// frame for an already-finalized match (the legacy dialect often
	// trails the modern one) cannot persist a duplicate summary.
	lastFinishedID string

	now func() time.Time
}

// New creates a machine wired to its collaborators. archive may be nil.
func New(cfg Config, resolver NameResolver, notifier Notifier, summaries SummaryStore, archive PlayArchive) *Machine {
	return &Machine{
		cfg:               cfg,
		resolver:          resolver,
		notifier:          notifier,
		summaries:         summaries,
		archive:           archive,
		index:             gamestate.NewIndex(),
		seenPlayInstances: make(map[int64]struct{}),
		seenPlays:         make(map[playSig]struct{}),
		now:               time.Now,
	}
}

// Snapshot is the live-match view served by the status command.
type Snapshot struct {
	MatchID    string `json:"match_id"`
	Opponent   string `json:"opponent"`
	PlayerDeck string `json:"player_deck"`
	Format     string `json:"format"`
	Plays      int    `json:"plays"`
	SeatKnown  bool   `json:"seat_known"`
}

// Snapshot returns the current session state for status queries.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		MatchID:    m.cur.id,
		Opponent:   m.cur.opponent,
		PlayerDeck: m.cur.playerDeck,
		Format:     m.cur.format,
		Plays:      len(m.cur.plays),
		SeatKnown:  m.cur.mySeat == 1 || m.cur.mySeat == 2,
	}
}

// HandleFrame dispatches one frame. It never returns an error: bad
// shapes are ignored where they are detected.
func (m *Machine) HandleFrame(f logstream.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finishedFrame = false

	switch f.Kind {
	case logstream.FrameStateTransition:
		if f.New == "Playing" {
			m.notifier.Announce("🎮 You entered **Playing** — I'll start reporting plays.")
		}
		if f.New == "MatchCompleted" && m.cur.id != "" {
			// Safety net for matches that never deliver a structured result.
			m.finish("Unknown", "")
		}

	case logstream.FrameMatchMarker:
		// The match stream header carries no state of its own; the seat
		// is learned from GRE systemSeatIds instead.

	case logstream.FrameJSON:
		obj := f.Object
		if req, ok := asMap(obj["request"]); ok {
			m.handleRequest(req)
		}
		m.walk(obj)
		if m.finishedFrame {
			return
		}
		if v, ok := obj["clientToMatchServiceMessageType"]; ok {
			if containsFold(asString(v), "concede") {
				m.finish("Loss", "")
			}
		}
	}
}

// seatLabel maps a seat number to "You"/"Opponent" for announcements.
func (m *Machine) seatLabel(seat int64) string {
	l := gamestate.SeatLabeler{OwnSeat: m.cur.mySeat, Invert: m.cfg.InvertSeat}
	return l.Label(seat)
}

func (m *Machine) timestamp() string {
	return m.now().Format("2006-01-02 15:04:05")
}

// recordPlay appends to the play log and mirrors into the archive.
func (m *Machine) recordPlay(actor, card, zone string) {
	m.cur.plays = append(m.cur.plays, history.Play{
		Time: m.timestamp(), Who: actor, Card: card, Zone: zone,
	})
	if m.archive != nil {
		if err := m.archive.RecordPlay(m.cur.id, actor, card, zone, m.now()); err != nil {
			log.Printf("archive play: %v", err)
		}
	}
}

// handleAnnotations processes zone-transfer annotations into draw,
// cast, and enter-play events.
func (m *Machine) handleAnnotations(v any) {
	anns, ok := asSlice(v)
	if !ok {
		return
	}
	for _, av := range anns {
		ann, ok := asMap(av)
		if !ok {
			continue
		}
		if !hasAnnotationType(ann, "ZoneTransfer") {
			continue
		}

		src := m.zoneDetail(ann, "zone_src")
		dst := m.zoneDetail(ann, "zone_dest")

		for _, iv := range getSlice(ann, "affectedIds") {
			inst, ok := asInt64(iv)
			if !ok {
				continue
			}
			rec := m.index.Object(inst)
			if rec == nil || !rec.HasCardID {
				continue
			}
			seat := rec.Seat()

			// draw: library -> hand
			if src == "library" && dst == "hand" {
				who := m.seatLabel(seat)
				name := m.resolver.Name(rec.CardID)
				m.notifier.Announce(fmt.Sprintf("📥 %s drew: **%s**", who, name))
				m.recordPlay(who, name, "draw")
				continue
			}
			// cast: anything -> stack
			if dst == "stack" {
				m.announcePlay(inst, rec.CardID, seat, "stack")
				continue
			}
			// entered battlefield
			if dst == "battlefield" {
				m.announcePlay(inst, rec.CardID, seat, "battlefield")
			}
		}
	}
}

// hasAnnotationType reports whether the annotation's type list contains
// the given marker as a substring.
func hasAnnotationType(ann map[string]any, marker string) bool {
	for _, tv := range getSlice(ann, "type") {
		if containsFold(asString(tv), marker) {
			return true
		}
	}
	return false
}

// zoneDetail extracts the zone referenced by the named detail key
// (first int32 or string value) and normalizes it to a zone kind.
func (m *Machine) zoneDetail(ann map[string]any, key string) string {
	for _, dv := range getSlice(ann, "details") {
		d, ok := asMap(dv)
		if !ok || asString(d["key"]) != key {
			continue
		}
		if ints := getSlice(d, "valueInt32"); len(ints) > 0 {
			if id, ok := asInt64(ints[0]); ok {
				return m.index.ZoneKind(id)
			}
		}
		if strs := getSlice(d, "valueString"); len(strs) > 0 {
			return gamestate.SimplifyZone(asString(strs[0]))
		}
	}
	return ""
}

// announcePlay emits one cast/enter-play notification, guarded by both
// deduplication sets.
func (m *Machine) announcePlay(instanceID, cardID, seat int64, zone string) {
	if !m.cfg.AnnouncePlays {
		return
	}
	if _, seen := m.seenPlayInstances[instanceID]; seen {
		return
	}
	m.seenPlayInstances[instanceID] = struct{}{}

	name := m.resolver.Name(cardID)
	who := m.seatLabel(seat)

	sig := playSig{cardID: cardID, actor: who, zone: zone, playIdx: len(m.cur.plays)}
	if _, seen := m.seenPlays[sig]; seen {
		return
	}
	m.seenPlays[sig] = struct{}{}

	switch zone {
	case "stack":
		m.notifier.Announce(fmt.Sprintf("✨ %s cast: **%s** (stack)", who, name))
	case "battlefield":
		m.notifier.Announce(fmt.Sprintf("🃏 %s played: **%s** → battlefield", who, name))
	default:
		m.notifier.Announce(fmt.Sprintf("🃏 %s moved: **%s** → %s", who, name, zone))
	}

	m.recordPlay(who, name, zone)
}

// maybeEmitOpeningHand posts the opening hand once per match, as soon
// as the own seat is known and at least one own card sits in hand.
func (m *Machine) maybeEmitOpeningHand() {
	if m.cur.openingEmitted {
		return
	}
	if m.cur.mySeat != 1 && m.cur.mySeat != 2 {
		return
	}
	ids := m.index.HandCards(m.cur.mySeat)
	if len(ids) == 0 {
		return
	}

	m.resolver.ResolveAll(ids)
	m.cur.openingEmitted = true

	text := "✋ **Your opening hand**:"
	for _, id := range ids {
		text += "\n- " + m.resolver.Name(id)
	}
	m.notifier.PostLong(text)
}

// finish finalizes the current match exactly once: announce the
// summary, persist it, and reset every piece of per-match state.
func (m *Machine) finish(label, matchID string) {
	if m.cur.finished {
		return
	}
	m.cur.finished = true

	if m.cur.id == "" && matchID != "" {
		m.cur.id = matchID
	}
	if m.cur.id != "" {
		m.lastFinishedID = m.cur.id
	}
	endedAt := m.timestamp()

	summary := history.Match{
		ID:             m.cur.id,
		Result:         label,
		Time:           endedAt,
		Format:         m.cur.format,
		PlayerDeck:     m.cur.playerDeck,
		PlayerDecklist: m.cur.playerDecklist,
		Opponent:       m.cur.opponent,
		OpponentDeck:   m.cur.opponentDeck,
		Plays:          m.cur.plays,
	}

	m.notifier.Announce(fmt.Sprintf(
		"📜 **Match finished!**\n➡️ Result: **%s**\n🃏 You: %s\n⚔️ Opponent: %s",
		label, orPlaceholder(summary.PlayerDeck), orPlaceholder(summary.Opponent),
	))

	if err := m.summaries.AppendSummary(summary); err != nil {
		log.Printf("save match: %v", err)
	}
	if m.archive != nil {
		err := m.archive.RecordMatch(store.MatchRecord{
			MatchID:    summary.ID,
			Result:     label,
			Format:     summary.Format,
			PlayerDeck: summary.PlayerDeck,
			Opponent:   summary.Opponent,
			PlayCount:  len(summary.Plays),
			FinishedAt: m.now(),
		})
		if err != nil {
			log.Printf("archive match: %v", err)
		}
	}

	// Reset for the next match.
	m.cur = session{}
	m.seenPlayInstances = make(map[int64]struct{})
	m.seenPlays = make(map[playSig]struct{})
	m.index.Reset()
	m.lastDeckSig = ""
	m.finishedFrame = true
}

func orPlaceholder(s string) string {
	if s == "" {
		return "??"
	}
	return s
}

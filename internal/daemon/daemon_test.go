package daemon

import (
	"path/filepath"
	"testing"

	"github.com/mtga-tools/historian/internal/cards"
	"github.com/mtga-tools/historian/internal/history"
	"github.com/mtga-tools/historian/internal/logstream"
	"github.com/mtga-tools/historian/internal/match"
	"github.com/mtga-tools/historian/internal/notify"
	"github.com/mtga-tools/historian/internal/store"
)

// TestPipelineEndToEnd exercises the full watcher pipeline the daemon
// wires up: raw log lines -> extractor -> state machine -> summary file
// and play archive.
func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()

	resolver := cards.Load(filepath.Join(dir, "card_map.json"))
	resolver.Put(555, "Lightning Bolt")
	resolver.Put(100, "Mountain")

	summaries := history.NewStore(filepath.Join(dir, "matches.json"))
	archive, err := store.New(filepath.Join(dir, "historian.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer archive.Close()

	machine := match.New(match.Config{AnnouncePlays: true},
		resolver, notify.New(""), summaries, archive)

	extractor := logstream.NewExtractor()
	lines := []string{
		// Deck submission inside an event-join request, logged as
		// free text followed by the JSON payload.
		`[UnityCrossThreadLogger]==> Event_Join {"request":"{\"Summary\":{\"Name\":\"Mono Red\",\"Attributes\":[{\"name\":\"Format\",\"value\":\"Standard\"}]},\"Deck\":{\"MainDeck\":[{\"cardId\":555,\"quantity\":4},{\"cardId\":100,\"quantity\":20}]}}"}`,
		// Room roster with both players.
		`{"matchGameRoomStateChangedEvent":{"gameRoomInfo":{"gameRoomConfig":{"matchId":"E2E-1","reservedPlayers":[{"systemSeatId":1,"teamId":1,"playerName":"me#11111"},{"systemSeatId":2,"teamId":2,"playerName":"rival#54321"}]}}}}`,
		// Game state: seat, zones, an object in the library.
		`{"greToClientEvent":{"greToClientMessages":[{"systemSeatIds":[1],"gameStateMessage":{"zones":[{"zoneId":1,"type":"ZoneType_Hand"},{"zoneId":2,"type":"ZoneType_Library"}],"gameObjects":[{"instanceId":10,"grpId":555,"zoneId":2,"controllerSeatId":1,"type":"GameObjectType_Card"}]}}]}}`,
		// The draw.
		`{"greToClientEvent":{"greToClientMessages":[{"gameStateMessage":{"annotations":[{"type":["AnnotationType_ZoneTransfer"],"affectedIds":[10],"details":[{"key":"zone_src","valueInt32":[2]},{"key":"zone_dest","valueInt32":[1]}]}]}}]}}`,
		// Structured final result.
		`{"matchGameRoomStateChangedEvent":{"gameRoomInfo":{"gameRoomConfig":{"matchId":"E2E-1"}},"finalMatchResult":{"matchId":"E2E-1","resultList":[{"scope":"MatchScope_Match","result":"ResultType_WinLoss","winningTeamId":1}]}}}`,
	}

	for _, line := range lines {
		for _, frame := range extractor.Feed(line) {
			machine.HandleFrame(frame)
		}
	}

	// One summary in matches.json.
	saved := summaries.Load()
	if len(saved) != 1 {
		t.Fatalf("got %d saved matches, want 1", len(saved))
	}
	m := saved[0]
	if m.ID != "E2E-1" || m.Result != "Win" {
		t.Errorf("summary = %+v, want E2E-1/Win", m)
	}
	if m.PlayerDeck != "Mono Red" || m.Format != "Standard" {
		t.Errorf("deck = %q format = %q", m.PlayerDeck, m.Format)
	}
	if m.Opponent != "rival#54321" {
		t.Errorf("opponent = %q", m.Opponent)
	}
	if len(m.Plays) != 1 || m.Plays[0].Card != "Lightning Bolt" || m.Plays[0].Zone != "draw" {
		t.Errorf("plays = %+v", m.Plays)
	}
	if m.PlayerDecklist == nil || len(m.PlayerDecklist.Main) != 2 {
		t.Errorf("decklist = %+v", m.PlayerDecklist)
	}

	// The archive saw the same events.
	if n, err := archive.PlayEventsCount(); err != nil || n != 1 {
		t.Errorf("PlayEventsCount = %d (%v), want 1", n, err)
	}
	if n, err := archive.MatchesCount(); err != nil || n != 1 {
		t.Errorf("MatchesCount = %d (%v), want 1", n, err)
	}
}

// TestPipelineSurvivesMalformedLines verifies that garbage interleaved
// with real frames does not disturb the pipeline.
func TestPipelineSurvivesMalformedLines(t *testing.T) {
	dir := t.TempDir()

	resolver := cards.Load(filepath.Join(dir, "card_map.json"))
	summaries := history.NewStore(filepath.Join(dir, "matches.json"))
	machine := match.New(match.Config{}, resolver, notify.New(""), summaries, nil)

	extractor := logstream.NewExtractor()
	lines := []string{
		`random engine output without any JSON`,
		`{"broken": [1, 2,`,
		`]}`,
		`{"FinalMatchResult":"Win","matchId":"GARBAGE-1"}`,
	}
	for _, line := range lines {
		for _, frame := range extractor.Feed(line) {
			machine.HandleFrame(frame)
		}
	}

	saved := summaries.Load()
	if len(saved) != 1 || saved[0].ID != "GARBAGE-1" {
		t.Fatalf("saved = %+v, want one GARBAGE-1 record", saved)
	}
}

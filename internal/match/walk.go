package match

import (
	"strings"

	"github.com/mtga-tools/historian/internal/gamestate"
)

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// walk recursively scans a decoded frame for the structures we care
// about. Arena nests game state under several historical envelopes, so
// rather than modeling each one we look for recognizable keys at every
// level.
func (m *Machine) walk(v any) {
	switch node := v.(type) {
	case map[string]any:
		if room, ok := asMap(node["matchGameRoomStateChangedEvent"]); ok {
			m.handleRoomEvent(room)
		}

		if _, ok := node["FinalMatchResult"]; ok {
			out := parseLegacyResult(node)
			if out.MatchID == "" || out.MatchID != m.lastFinishedID {
				m.finish(out.Label, out.MatchID)
			}
		}
		if m.finishedFrame {
			return
		}

		if gre, ok := asMap(node["greToClientEvent"]); ok {
			// Only the seat is read off the envelope here: it is
			// addressed to our client, so its first systemSeatIds names
			// our seat. The game state inside the messages is picked up
			// exactly once by the generic recursion below.
			for _, mv := range getSlice(gre, "greToClientMessages") {
				if msg, ok := asMap(mv); ok {
					m.learnSeat(msg)
				}
			}
		}

		// Game state keys appear at arbitrary levels (gameStateMessage,
		// gameState, or bare); each owning node is visited once.
		if z, ok := node["zones"]; ok {
			m.indexZones(z)
		}
		if o, ok := node["gameObjects"]; ok {
			m.indexObjects(o)
		}
		if a, ok := node["annotations"]; ok {
			m.handleAnnotations(a)
		}
		m.maybeEmitOpeningHand()

		m.indexSingleCard(node)

		for _, child := range node {
			m.walk(child)
			if m.finishedFrame {
				return
			}
		}

	case []any:
		for _, item := range node {
			m.walk(item)
			if m.finishedFrame {
				return
			}
		}
	}
}

// learnSeat records the own seat from the first systemSeatIds seen.
func (m *Machine) learnSeat(msg map[string]any) {
	if m.cur.mySeat != 0 {
		return
	}
	seats := getSlice(msg, "systemSeatIds")
	if len(seats) == 0 {
		return
	}
	if seat, ok := asInt64(seats[0]); ok && seat != 0 {
		m.cur.mySeat = seat
	}
}

// indexZones records zone id -> kind mappings.
func (m *Machine) indexZones(v any) {
	zones, ok := asSlice(v)
	if !ok {
		return
	}
	for _, zv := range zones {
		z, ok := asMap(zv)
		if !ok {
			continue
		}
		id, ok := asInt64(z["zoneId"])
		if !ok {
			continue
		}
		kind := firstString(z, "type", "zoneType", "visibility")
		if kind != "" {
			m.index.PutZone(id, kind)
		}
	}
}

// indexObjects merges gameObjects entries into the object index.
// Non-card objects (abilities, emblems) transit zones too and must not
// produce play announcements, so they are never indexed.
func (m *Machine) indexObjects(v any) {
	objs, ok := asSlice(v)
	if !ok {
		return
	}
	for _, ov := range objs {
		o, ok := asMap(ov)
		if !ok {
			continue
		}
		typ := firstString(o, "type", "GameObjectType", "gameObjectType")
		if !containsFold(typ, "Card") {
			continue
		}
		inst, ok := asInt64(o["instanceId"])
		if !ok {
			continue
		}
		m.index.MergeObject(inst, objectUpdate(o))
	}
}

// indexSingleCard picks up card dumps outside a gameObjects list.
// These appear in deck submissions and mulligan prompts and carry a
// grpId but sometimes no instanceId; a synthetic key keeps them
// addressable for later zone lookups.
func (m *Machine) indexSingleCard(node map[string]any) {
	typ := firstString(node, "type", "GameObjectType", "gameObjectType")
	if !containsFold(typ, "Card") {
		return
	}
	grp, ok := asInt64(node["grpId"])
	if !ok {
		return
	}
	key, ok := asInt64(node["instanceId"])
	if !ok {
		key = gamestate.SyntheticKey(grp)
	}
	m.index.MergeObject(key, objectUpdate(node))
	if zs := asString(node["zone"]); zs != "" {
		m.index.SetObjectZone(key, gamestate.SimplifyZone(zs))
	}
}

// objectUpdate converts a raw game object map into the field-wise
// update the index merges.
func objectUpdate(o map[string]any) gamestate.ObjectUpdate {
	var u gamestate.ObjectUpdate
	if v, ok := asInt64(o["grpId"]); ok {
		u.CardID, u.HasCardID = v, true
	}
	if v, ok := asInt64(o["zoneId"]); ok {
		u.ZoneID, u.HasZoneID = v, true
	}
	if v, ok := asInt64(o["controllerSeatId"]); ok {
		u.Controller, u.HasController = v, true
	}
	if v, ok := asInt64(o["ownerSeatId"]); ok {
		u.Owner, u.HasOwner = v, true
	}
	return u
}

// handleRoomEvent learns identities from the room roster and finalizes
// on the structured result.
func (m *Machine) handleRoomEvent(room map[string]any) {
	cfg := getMap(getMap(room, "gameRoomInfo"), "gameRoomConfig")

	matchID := ""
	if cfg != nil {
		matchID = asString(cfg["matchId"])
	}
	if matchID == "" {
		matchID = asString(room["matchId"])
	}
	if matchID != "" && matchID == m.lastFinishedID {
		// Stale room event for a match we already finalized.
		return
	}

	if cfg != nil && m.learnPlayers(cfg) {
		if matchID != "" && m.cur.id == "" {
			m.cur.id = matchID
		}
	}

	if final := getMap(room, "finalMatchResult"); final != nil {
		out := parseModernResult(final, m.cur.myTeamID, m.cur.hasTeamID)
		if matchID == "" {
			matchID = out.MatchID
		}
		m.finish(out.Label, matchID)
	}
}

// learnPlayers partitions the reserved players into self and opponent.
// With a known seat the split is exact; before that, a two-player
// roster falls back to first-is-self. Reports whether a roster was
// present. The opponent is recorded silently here; the announcement
// comes from the event join request, which carries the screen name.
func (m *Machine) learnPlayers(cfg map[string]any) bool {
	players := getSlice(cfg, "reservedPlayers")
	if len(players) == 0 {
		return false
	}

	var self, other map[string]any
	if m.cur.mySeat == 1 || m.cur.mySeat == 2 {
		for _, pv := range players {
			p, ok := asMap(pv)
			if !ok {
				continue
			}
			if seat, ok := asInt64(p["systemSeatId"]); ok && seat == m.cur.mySeat {
				self = p
			} else {
				other = p
			}
		}
	} else if len(players) == 2 {
		self, _ = asMap(players[0])
		other, _ = asMap(players[1])
	}

	if self != nil {
		if team, ok := asInt64(self["teamId"]); ok {
			m.cur.myTeamID, m.cur.hasTeamID = team, true
		}
		if seat, ok := asInt64(self["systemSeatId"]); ok {
			m.cur.mySeat = seat
		}
	}
	if other != nil && m.cur.opponent == "" {
		m.cur.opponent = asString(other["playerName"])
	}
	return true
}

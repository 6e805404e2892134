// Package gamestate holds the in-memory picture of the game the watcher
// reconstructs from log frames: which zone each object sits in, who
// controls it, and how raw zone-type strings map onto the small zone
// vocabulary the rest of the pipeline speaks.
package gamestate

import "strings"

// ObjectRecord is the last-known state of one game object instance.
// Fields are merged in from frames one at a time: a frame that only
// carries a zone update must not erase a previously learned card id,
// so each field has a companion "known" flag.
type ObjectRecord struct {
	CardID     int64
	Controller int64
	Owner      int64
	ZoneID     int64
	Zone       string // normalized zone kind, derived from ZoneID

	HasCardID     bool
	HasController bool
	HasOwner      bool
	HasZoneID     bool
}

// Seat returns the controlling seat, falling back to the owner.
// Returns 0 when neither is known.
func (r *ObjectRecord) Seat() int64 {
	if r.HasController && r.Controller != 0 {
		return r.Controller
	}
	if r.HasOwner {
		return r.Owner
	}
	return 0
}

// Index maps zone ids to normalized zone kinds and instance ids to
// object records. It has no locking: the state machine is the only
// writer and runs on a single goroutine.
type Index struct {
	zones   map[int64]string
	objects map[int64]*ObjectRecord
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		zones:   make(map[int64]string),
		objects: make(map[int64]*ObjectRecord),
	}
}

// PutZone records (or overwrites) the normalized kind for a zone id.
func (x *Index) PutZone(id int64, rawType string) {
	x.zones[id] = SimplifyZone(rawType)
}

// ZoneKind returns the normalized kind for a zone id, or "" if unknown.
func (x *Index) ZoneKind(id int64) string {
	return x.zones[id]
}

// Object returns the record for an instance id, or nil if unknown.
func (x *Index) Object(id int64) *ObjectRecord {
	return x.objects[id]
}

// upsert returns the record for key, creating it if needed.
func (x *Index) upsert(key int64) *ObjectRecord {
	rec := x.objects[key]
	if rec == nil {
		rec = &ObjectRecord{}
		x.objects[key] = rec
	}
	return rec
}

// ObjectUpdate carries the fields of one object as a frame reported
// them. Only fields with their Has flag set are merged.
type ObjectUpdate struct {
	CardID     int64
	Controller int64
	Owner      int64
	ZoneID     int64

	HasCardID     bool
	HasController bool
	HasOwner      bool
	HasZoneID     bool
}

// MergeObject merges an update into the record for instanceID,
// re-deriving the zone kind whenever a zone id is known.
func (x *Index) MergeObject(instanceID int64, u ObjectUpdate) {
	rec := x.upsert(instanceID)
	if u.HasCardID {
		rec.CardID = u.CardID
		rec.HasCardID = true
	}
	if u.HasController {
		rec.Controller = u.Controller
		rec.HasController = true
	}
	if u.HasOwner {
		rec.Owner = u.Owner
		rec.HasOwner = true
	}
	if u.HasZoneID {
		rec.ZoneID = u.ZoneID
		rec.HasZoneID = true
	}
	if rec.HasZoneID {
		rec.Zone = x.zones[rec.ZoneID]
	}
}

// SetObjectZone pins an explicit zone kind on a record, bypassing the
// zone-id derivation (used for card dumps that name the zone directly).
func (x *Index) SetObjectZone(instanceID int64, zone string) {
	x.upsert(instanceID).Zone = zone
}

// SyntheticKey derives an index key for a card dump that carries no
// instance id. Card ids and instance ids are both positive, so the
// negated card id cannot collide with a real instance.
func SyntheticKey(cardID int64) int64 {
	return -cardID
}

// HandCards returns the card ids of every object currently in the hand
// of the given seat (by controller or owner).
func (x *Index) HandCards(seat int64) []int64 {
	var ids []int64
	for _, rec := range x.objects {
		if rec.Zone != "hand" || !rec.HasCardID {
			continue
		}
		if (rec.HasController && rec.Controller == seat) || (rec.HasOwner && rec.Owner == seat) {
			ids = append(ids, rec.CardID)
		}
	}
	return ids
}

// Empty reports whether the index holds no zones and no objects.
func (x *Index) Empty() bool {
	return len(x.zones) == 0 && len(x.objects) == 0
}

// Reset clears all zones and objects for the next match.
func (x *Index) Reset() {
	x.zones = make(map[int64]string)
	x.objects = make(map[int64]*ObjectRecord)
}

// zoneKinds is checked in order; the first substring match wins.
var zoneKinds = []string{
	"hand", "stack", "battlefield", "library",
	"graveyard", "exile", "command", "revealed",
}

// SimplifyZone maps a raw zone-type string (e.g. "ZoneType_Hand") onto
// the fixed zone vocabulary. Unmatched strings pass through lowercased.
func SimplifyZone(raw string) string {
	s := strings.ToLower(raw)
	for _, kind := range zoneKinds {
		if strings.Contains(s, kind) {
			return kind
		}
	}
	return s
}

// SeatLabeler maps seat numbers to "You"/"Opponent" labels. Invert
// flips the mapping globally for users whose seat is misdetected.
type SeatLabeler struct {
	OwnSeat int64 // 0 until learned
	Invert  bool
}

// Label returns the display label for a seat. With no seat information
// at all it returns "Player". When the own seat is unknown, seat 1 is
// assumed to be the viewer (seat 2 when inverted).
func (l *SeatLabeler) Label(seat int64) string {
	if seat == 0 {
		return "Player"
	}
	if l.OwnSeat == 1 || l.OwnSeat == 2 {
		mine := l.OwnSeat
		if l.Invert {
			if mine == 1 {
				mine = 2
			} else {
				mine = 1
			}
		}
		if seat == mine {
			return "You"
		}
		return "Opponent"
	}
	// Fallback when the seat was never learned.
	if l.Invert {
		if seat == 2 {
			return "You"
		}
		return "Opponent"
	}
	if seat == 1 {
		return "You"
	}
	return "Opponent"
}

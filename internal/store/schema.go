package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 1

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Every play the watcher announced, in announcement order.
CREATE TABLE IF NOT EXISTS play_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	match_id  TEXT    NOT NULL DEFAULT '',
	actor     TEXT    NOT NULL,
	card      TEXT    NOT NULL,
	zone      TEXT    NOT NULL,
	timestamp TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_play_events_match ON play_events(match_id);
CREATE INDEX IF NOT EXISTS idx_play_events_timestamp ON play_events(timestamp);

-- One row per finished match.
CREATE TABLE IF NOT EXISTS matches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	match_id    TEXT    NOT NULL DEFAULT '',
	result      TEXT    NOT NULL,
	format      TEXT    NOT NULL DEFAULT '',
	player_deck TEXT    NOT NULL DEFAULT '',
	opponent    TEXT    NOT NULL DEFAULT '',
	play_count  INTEGER NOT NULL DEFAULT 0,
	finished_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_match ON matches(match_id);
CREATE INDEX IF NOT EXISTS idx_matches_finished ON matches(finished_at);
`,
}

package ipc

import "github.com/mtga-tools/historian/internal/match"

// Request is a JSON message sent from client to server.
type Request struct {
	Command string            `json:"command"` // "status", "stop", "ping"
	Args    map[string]string `json:"args,omitempty"`
}

// Response is a JSON message sent from server to client.
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// StatusData is returned by the "status" command.
type StatusData struct {
	Uptime          string         `json:"uptime"`
	LogPath         string         `json:"log_path"`
	Live            match.Snapshot `json:"live"`
	PlayEventsCount int64          `json:"play_events_count"`
	MatchesCount    int64          `json:"matches_count"`
	CardsCached     int            `json:"cards_cached"`
	DBSizeBytes     int64          `json:"db_size_bytes"`
}

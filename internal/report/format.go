// Package report renders daemon status and match history for the
// terminal.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtga-tools/historian/internal/history"
	"github.com/mtga-tools/historian/internal/ipc"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// FormatStatus formats daemon StatusData as a terminal-friendly table.
func FormatStatus(status *ipc.StatusData) string {
	var b strings.Builder

	b.WriteString(bold + "Historian - Daemon Status" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Uptime:", status.Uptime))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Log File:", status.LogPath))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Matches Recorded:", status.MatchesCount))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Play Events:", status.PlayEventsCount))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Cards Cached:", status.CardsCached))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "DB Size:", humanBytes(status.DBSizeBytes)))

	live := status.Live
	if live.MatchID != "" || live.PlayerDeck != "" || live.Plays > 0 {
		b.WriteString(fmt.Sprintf("\n%sLive Match%s\n", bold, reset))
		b.WriteString(strings.Repeat("-", 40) + "\n")
		b.WriteString(fmt.Sprintf("%-20s %s\n", "Match ID:", orNone(live.MatchID)))
		b.WriteString(fmt.Sprintf("%-20s %s\n", "Deck:", orNone(live.PlayerDeck)))
		b.WriteString(fmt.Sprintf("%-20s %s\n", "Format:", orNone(live.Format)))
		b.WriteString(fmt.Sprintf("%-20s %s\n", "Opponent:", orNone(live.Opponent)))
		b.WriteString(fmt.Sprintf("%-20s %d\n", "Plays:", live.Plays))
		b.WriteString(fmt.Sprintf("%-20s %v\n", "Seat Known:", live.SeatKnown))
	} else {
		b.WriteString(fmt.Sprintf("\n%-20s %s\n", "Live Match:", "(none)"))
	}

	return b.String()
}

// FormatHistory formats saved match records as a terminal table, newest
// last (chronological append order). limit <= 0 shows everything.
func FormatHistory(matches []history.Match, limit int) string {
	var b strings.Builder

	b.WriteString(bold + "Historian - Match History" + reset + "\n")
	b.WriteString(strings.Repeat("=", 78) + "\n")

	if len(matches) == 0 {
		b.WriteString("No matches recorded yet.\n")
		return b.String()
	}

	shown := matches
	if limit > 0 && len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}

	b.WriteString(fmt.Sprintf("%-20s %-8s %-10s %-18s %-14s %5s\n",
		"Time", "Result", "Format", "Deck", "Opponent", "Plays"))
	b.WriteString(strings.Repeat("-", 78) + "\n")

	wins, losses := 0, 0
	for _, m := range matches {
		switch m.Result {
		case "Win":
			wins++
		case "Loss":
			losses++
		}
	}

	for _, m := range shown {
		b.WriteString(fmt.Sprintf("%-20s %s%-8s%s %-10s %-18s %-14s %5d\n",
			m.Time,
			colorForResult(m.Result), m.Result, reset,
			truncate(m.Format, 10), truncate(m.PlayerDeck, 18),
			truncate(m.Opponent, 14), len(m.Plays)))
	}

	b.WriteString(strings.Repeat("-", 78) + "\n")
	b.WriteString(fmt.Sprintf("%d matches, %d wins / %d losses\n", len(matches), wins, losses))
	if len(shown) < len(matches) {
		b.WriteString(fmt.Sprintf("(showing the last %d)\n", len(shown)))
	}

	return b.String()
}

// FormatJSON marshals any value as indented JSON.
func FormatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// colorForResult returns an ANSI color code for a match result label.
func colorForResult(result string) string {
	switch result {
	case "Win":
		return green
	case "Loss":
		return red
	default:
		return yellow
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// humanBytes formats bytes as a human-readable string (KB, MB, GB).
func humanBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

package match

// MatchOutcome is the common form both result dialects parse into.
type MatchOutcome struct {
	Label   string // "Win", "Loss", or "Unknown"
	MatchID string // "" when the frame carried none
}

// parseModernResult interprets the structured finalMatchResult carried
// by matchGameRoomStateChangedEvent. The winning team comes from the
// match-scoped win/loss entry when present, otherwise from the first
// entry of the result list. Without a known own team id the outcome
// stays "Unknown".
func parseModernResult(final map[string]any, myTeamID int64, hasTeamID bool) MatchOutcome {
	results := getSlice(final, "resultList")

	var winning int64
	found := false
	for _, v := range results {
		r, ok := asMap(v)
		if !ok {
			continue
		}
		if asString(r["scope"]) == "MatchScope_Match" && asString(r["result"]) == "ResultType_WinLoss" {
			if w, ok := asInt64(r["winningTeamId"]); ok {
				winning = w
				found = true
			}
			break
		}
	}
	if !found && len(results) > 0 {
		if r, ok := asMap(results[0]); ok {
			if w, ok := asInt64(r["winningTeamId"]); ok {
				winning = w
				found = true
			}
		}
	}

	label := "Unknown"
	if found && hasTeamID {
		if winning == myTeamID {
			label = "Win"
		} else {
			label = "Loss"
		}
	}

	return MatchOutcome{Label: label, MatchID: asString(final["matchId"])}
}

// parseLegacyResult interprets the older shape with a top-level
// FinalMatchResult label.
func parseLegacyResult(node map[string]any) MatchOutcome {
	label := asString(node["FinalMatchResult"])
	if label == "" {
		label = "Unknown"
	}
	return MatchOutcome{Label: label, MatchID: asString(node["matchId"])}
}

// Package presence maps game-state payloads onto the two-line Discord
// activity and owns the process-wide session state.
package presence

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed marks payloads whose declared game_type is unknown or
// whose required fields are missing. Callers log and skip the update.
var ErrMalformed = errors.New("malformed game payload")

// Render maps a classified game-state payload to the details/state pair
// shown in the presence activity. Pure: no side effects, no shared state.
func Render(payload map[string]any) (line1, line2 string, err error) {
	gameType, _ := payload["game_type"].(string)
	switch gameType {
	case "offline":
		return renderOffline(payload)
	case "live":
		return renderLive(payload)
	default:
		return "", "", fmt.Errorf("%w: game_type %q", ErrMalformed, gameType)
	}
}

func renderOffline(payload map[string]any) (string, string, error) {
	round, ok := asUint(payload["round"])
	if !ok {
		return "", "", fmt.Errorf("%w: offline payload missing round", ErrMalformed)
	}
	mapName, ok := payload["mapName"].(string)
	if !ok {
		return "", "", fmt.Errorf("%w: offline payload missing mapName", ErrMalformed)
	}
	mode, _ := payload["mode"].(string)
	maxRounds, _ := asUint(payload["roundCount"])
	score, _ := asUint(dig(payload, "player", "totalScore", "amount"))

	if mode == "streak" {
		return streakLines(mapName, round)
	}

	return mapName, roundLine(round, maxRounds, score), nil
}

func renderLive(payload map[string]any) (string, string, error) {
	round, ok := asUint(payload["currentRoundNumber"])
	if !ok {
		return "", "", fmt.Errorf("%w: live payload missing currentRoundNumber", ErrMalformed)
	}
	mode, ok := payload["game_mode"].(string)
	if !ok {
		return "", "", fmt.Errorf("%w: live payload missing game_mode", ErrMalformed)
	}

	mapName := "Battle Royale"
	if _, hasOptions := payload["options"]; hasOptions {
		if name, ok := payload["mapName"].(string); ok {
			mapName = name
		} else if name, ok := dig(payload, "options", "map", "name").(string); ok {
			mapName = name
		} else {
			return "", "", fmt.Errorf("%w: live payload missing map name", ErrMalformed)
		}
	}

	if mode == "streak" {
		return streakLines(mapName, round)
	}

	// Quiz games carry aggregated answer stats and hide the mode name.
	line1 := fmt.Sprintf("%s - %s", mode, mapName)
	if _, isQuiz := payload["aggregatedAnswerStats"]; isQuiz {
		line1 = "Quiz"
	}

	return line1, roundLine(round, 0, 0), nil
}

func streakLines(mapName string, round uint64) (string, string, error) {
	streak := uint64(0)
	if round > 0 {
		streak = round - 1
	}
	return fmt.Sprintf("Country Streak - %s", mapName), fmt.Sprintf("Streak: %d", streak), nil
}

func roundLine(round, maxRounds, score uint64) string {
	line := fmt.Sprintf("Round: %d", round)
	if maxRounds > 0 {
		line += fmt.Sprintf(" / %d", maxRounds)
	}
	if score > 0 {
		line += fmt.Sprintf(" - %d points", score)
	}
	return line
}

// asUint reads a JSON-decoded numeric value. The upstream API mixes
// number and string encodings (scores arrive as strings).
func asUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case string:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// dig walks nested JSON objects; returns nil when any hop is missing.
func dig(payload map[string]any, keys ...string) any {
	var current any = payload
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// internal/scoring/leaderboard.go
package scoring

import (
	"sort"
	"time"
)

// PlayerStanding is the input row for GenerateLeaderboard: one player's
// current score plus the tie-break metadata.
type PlayerStanding struct {
	PlayerID   string    `json:"playerId"`
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	LastChange time.Time `json:"lastChange"`
}

// LeaderboardEntry is one ranked row. Rank is assigned by position after
// sorting and is never persisted as an intrinsic player attribute.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Level    int    `json:"level"`
	Rank     int    `json:"rank"`
}

// GenerateLeaderboard orders players by score desc, level desc, name asc,
// then earliest last-change wins as the final tie-break, and assigns 1-based
// ranks. The input slice is not mutated; calling it again on identical input
// yields an identical result.
func GenerateLeaderboard(players []PlayerStanding) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(players))
	lastChange := make(map[string]time.Time, len(players))
	for _, p := range players {
		entries = append(entries, LeaderboardEntry{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Score:    p.Score,
			Level:    CalculatePlayerLevel(p.Score).Level,
		})
		lastChange[p.PlayerID] = p.LastChange
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return lastChange[a.PlayerID].Before(lastChange[b.PlayerID])
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

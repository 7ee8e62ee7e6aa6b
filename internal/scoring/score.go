// internal/scoring/score.go
package scoring

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a score event.
type EventType string

const (
	// EventHit is a correct guess.
	EventHit EventType = "hit"
	// EventMiss is an incorrect guess.
	EventMiss EventType = "miss"
	// EventParticipation is awarded for taking part in a round at all.
	EventParticipation EventType = "participation"
)

const (
	hitBasePoints           = 100
	participationBasePoints = 10
	missPenalty             = -50
	streakBonusStep         = 20
)

// ScoreEvent is a single scoring occurrence for one player.
type ScoreEvent struct {
	ID             uuid.UUID `json:"id"`
	PlayerID       string    `json:"playerId"`
	Type           EventType `json:"type"`
	Streak         int       `json:"streak,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PlayerScoreState is the per-player accumulator fed into CalculateBaseScore.
type PlayerScoreState struct {
	CurrentPoints int `json:"currentPoints"`
}

// ScoreResult is the breakdown produced by CalculateBaseScore.
type ScoreResult struct {
	BasePoints int `json:"basePoints"`
	Bonus      int `json:"bonus"`
	Penalty    int `json:"penalty"`
	Total      int `json:"total"`
}

// speedMultiplier rewards fast correct guesses. It applies to hits only.
func speedMultiplier(responseTimeMs int64) float64 {
	switch {
	case responseTimeMs < 2000:
		return 2.0
	case responseTimeMs < 5000:
		return 1.5
	case responseTimeMs < 10000:
		return 1.2
	default:
		return 1.0
	}
}

// CalculateBaseScore maps one score event plus the player's current score
// state to a score delta breakdown. Pure and deterministic.
//
// Hits earn 100 base points plus a streak bonus of 20 per consecutive hit
// beyond the first; a speed multiplier scales (base + bonus) only. Misses
// carry a flat -50 penalty. Participation earns a flat 10 points. The total
// is the player's running score with the delta applied.
func CalculateBaseScore(ev ScoreEvent, state PlayerScoreState) ScoreResult {
	var res ScoreResult
	multiplier := 1.0

	switch ev.Type {
	case EventHit:
		res.BasePoints = hitBasePoints
		if ev.Streak > 1 {
			res.Bonus = streakBonusStep * (ev.Streak - 1)
		}
		multiplier = speedMultiplier(ev.ResponseTimeMs)
	case EventMiss:
		res.Penalty = missPenalty
	case EventParticipation:
		res.BasePoints = participationBasePoints
	}

	res.Total = state.CurrentPoints + int(float64(res.BasePoints+res.Bonus)*multiplier) + res.Penalty
	return res
}

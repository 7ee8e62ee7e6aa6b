// internal/scoring/score_test.go
package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHitWithStreakAndSpeed(t *testing.T) {
	res := CalculateBaseScore(ScoreEvent{
		Type:           EventHit,
		Streak:         3,
		ResponseTimeMs: 1500,
	}, PlayerScoreState{CurrentPoints: 0})

	assert.Equal(t, 100, res.BasePoints)
	assert.Equal(t, 40, res.Bonus, "streak 3 should earn 20 x 2 bonus")
	assert.Equal(t, 0, res.Penalty)
	assert.Equal(t, 280, res.Total, "(100+40) x 2 speed multiplier")
}

func TestMissPenalty(t *testing.T) {
	res := CalculateBaseScore(ScoreEvent{Type: EventMiss}, PlayerScoreState{CurrentPoints: 280})

	assert.Equal(t, 0, res.BasePoints)
	assert.Equal(t, 0, res.Bonus)
	assert.Equal(t, -50, res.Penalty)
	assert.Equal(t, 230, res.Total)
}

func TestParticipation(t *testing.T) {
	res := CalculateBaseScore(ScoreEvent{Type: EventParticipation}, PlayerScoreState{CurrentPoints: 5})

	assert.Equal(t, 10, res.BasePoints)
	assert.Equal(t, 0, res.Bonus)
	assert.Equal(t, 15, res.Total)
}

func TestSpeedMultiplierBands(t *testing.T) {
	cases := []struct {
		name       string
		responseMs int64
		total      int
	}{
		{"under 2s doubles", 1999, 200},
		{"under 5s is 1.5x", 4999, 150},
		{"under 10s is 1.2x", 9999, 120},
		{"slow hit has no multiplier", 10000, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := CalculateBaseScore(ScoreEvent{Type: EventHit, Streak: 1, ResponseTimeMs: tc.responseMs}, PlayerScoreState{})
			assert.Equal(t, tc.total, res.Total)
		})
	}
}

func TestNoMultiplierOnNonHits(t *testing.T) {
	// A fast miss is still just the flat penalty.
	res := CalculateBaseScore(ScoreEvent{Type: EventMiss, ResponseTimeMs: 100}, PlayerScoreState{CurrentPoints: 100})
	assert.Equal(t, 50, res.Total)

	res = CalculateBaseScore(ScoreEvent{Type: EventParticipation, ResponseTimeMs: 100}, PlayerScoreState{})
	assert.Equal(t, 10, res.Total)
}

func TestLevelBands(t *testing.T) {
	cases := []struct {
		score        int
		level        int
		name         string
		pointsToNext int
	}{
		{0, 1, "Novato", 101},
		{100, 1, "Novato", 1},
		{101, 2, "Aprendiz", 150},
		{250, 2, "Aprendiz", 1},
		{251, 3, "Artista", 250},
		{500, 3, "Artista", 1},
		{501, 4, "Experto", 500},
		{1000, 4, "Experto", 1},
		{1001, 5, "Maestro", 0},
		{99999, 5, "Maestro", 0},
	}
	for _, tc := range cases {
		info := CalculatePlayerLevel(tc.score)
		assert.Equal(t, tc.level, info.Level, "score %d", tc.score)
		assert.Equal(t, tc.name, info.Name, "score %d", tc.score)
		assert.Equal(t, tc.pointsToNext, info.PointsToNext, "score %d", tc.score)
		assert.Equal(t, tc.score, info.CurrentPoints)
	}
}

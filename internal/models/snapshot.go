// internal/models/snapshot.go
package models

import (
	"encoding/json"
	"time"
)

// Phase is one state of the game finite-state machine.
type Phase string

const (
	PhaseWaiting       Phase = "WAITING"
	PhaseStarting      Phase = "STARTING"
	PhaseWordSelection Phase = "WORD_SELECTION"
	PhaseDrawing       Phase = "DRAWING"
	PhaseGuessing      Phase = "GUESSING"
	PhaseRoundEnd      Phase = "ROUND_END"
	PhaseGameEnd       Phase = "GAME_END"
	PhasePaused        Phase = "PAUSED"
	PhaseError         Phase = "ERROR"
)

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseStarting, PhaseWordSelection, PhaseDrawing,
		PhaseGuessing, PhaseRoundEnd, PhaseGameEnd, PhasePaused, PhaseError:
		return true
	}
	return false
}

// RoundEvaluation carries the server's end-of-round summary.
type RoundEvaluation struct {
	Round           int            `json:"round"`
	Word            string         `json:"word"`
	CorrectGuessers []string       `json:"correctGuessers,omitempty"`
	ScoreDeltas     map[string]int `json:"scoreDeltas,omitempty"`
}

// GameError is the server-declared fatal error attached to PhaseError.
type GameError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// GameStateSnapshot is the complete locally-held mirror of authoritative game
// state at a point in time. Exactly one snapshot is live per room per client;
// it is replaced via ApplyPatch on every authoritative update.
type GameStateSnapshot struct {
	RoomID          string            `json:"roomId"`
	Phase           Phase             `json:"phase"`
	PreviousPhase   Phase             `json:"previousPhase,omitempty"`
	CurrentRound    int               `json:"currentRound"`
	TotalRounds     int               `json:"totalRounds"`
	TimeRemainingMs int64             `json:"timeRemainingMs"`
	PhaseMaxTimeMs  int64             `json:"phaseMaxTimeMs"`
	CurrentDrawerID string            `json:"currentDrawerId,omitempty"`
	CurrentWord     string            `json:"currentWord,omitempty"`
	WordOptions     []string          `json:"wordOptions,omitempty"`
	Players         []Player          `json:"players"`
	Scores          map[string]int    `json:"scores,omitempty"`
	Drawings        []Drawing         `json:"drawings,omitempty"`
	Guesses         []Guess           `json:"guesses,omitempty"`
	RoundEvaluation *RoundEvaluation  `json:"roundEvaluation,omitempty"`
	LastError       *GameError        `json:"lastError,omitempty"`
	LastUpdated     time.Time         `json:"lastUpdated"`
}

// PlayerByID returns the roster entry for id, or nil if absent.
func (s *GameStateSnapshot) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// IsHost reports whether id is present in the roster with the host role.
func (s *GameStateSnapshot) IsHost(id string) bool {
	p := s.PlayerByID(id)
	return p != nil && p.IsHost
}

// IsDrawer reports whether id is the current drawer.
func (s *GameStateSnapshot) IsDrawer(id string) bool {
	return s.CurrentDrawerID != "" && s.CurrentDrawerID == id
}

// SnapshotPatch is the shape of a game:stateUpdated payload. Every field is
// optional; nil fields leave the corresponding snapshot field untouched, so a
// partial push is a shallow override rather than a deep merge.
type SnapshotPatch struct {
	RoomID          *string          `json:"roomId,omitempty"`
	Phase           *Phase           `json:"phase,omitempty"`
	CurrentRound    *int             `json:"currentRound,omitempty"`
	TotalRounds     *int             `json:"totalRounds,omitempty"`
	TimeRemainingMs *int64           `json:"timeRemainingMs,omitempty"`
	PhaseMaxTimeMs  *int64           `json:"phaseMaxTimeMs,omitempty"`
	CurrentDrawerID *string          `json:"currentDrawerId,omitempty"`
	CurrentWord     *string          `json:"currentWord,omitempty"`
	WordOptions     []string         `json:"wordOptions,omitempty"`
	Players         []Player         `json:"players,omitempty"`
	Scores          map[string]int   `json:"scores,omitempty"`
	Drawings        []Drawing        `json:"drawings,omitempty"`
	Guesses         []Guess          `json:"guesses,omitempty"`
	RoundEvaluation *RoundEvaluation `json:"roundEvaluation,omitempty"`
}

// ParseSnapshotPatch decodes a raw stateUpdated payload.
func ParseSnapshotPatch(raw json.RawMessage) (SnapshotPatch, error) {
	var p SnapshotPatch
	err := json.Unmarshal(raw, &p)
	return p, err
}

// ApplyPatch overwrites the snapshot's fields with every field the patch
// carries. Last write wins; the caller decides what to do with the phase
// named in the patch before applying it.
func (s *GameStateSnapshot) ApplyPatch(p SnapshotPatch, now time.Time) {
	if p.RoomID != nil {
		s.RoomID = *p.RoomID
	}
	if p.CurrentRound != nil {
		s.CurrentRound = *p.CurrentRound
	}
	if p.TotalRounds != nil {
		s.TotalRounds = *p.TotalRounds
	}
	if p.TimeRemainingMs != nil {
		s.TimeRemainingMs = *p.TimeRemainingMs
	}
	if p.PhaseMaxTimeMs != nil {
		s.PhaseMaxTimeMs = *p.PhaseMaxTimeMs
	}
	if p.CurrentDrawerID != nil {
		s.CurrentDrawerID = *p.CurrentDrawerID
	}
	if p.CurrentWord != nil {
		s.CurrentWord = *p.CurrentWord
	}
	if p.WordOptions != nil {
		s.WordOptions = p.WordOptions
	}
	if p.Players != nil {
		s.Players = p.Players
	}
	if p.Scores != nil {
		s.Scores = p.Scores
	}
	if p.Drawings != nil {
		s.Drawings = p.Drawings
	}
	if p.Guesses != nil {
		s.Guesses = p.Guesses
	}
	if p.RoundEvaluation != nil {
		s.RoundEvaluation = p.RoundEvaluation
	}
	s.LastUpdated = now
}

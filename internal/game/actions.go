// internal/game/actions.go
package game

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/drawdash/drawdash/internal/models"
	"github.com/drawdash/drawdash/internal/protocol"
	"github.com/drawdash/drawdash/internal/transport"
)

var (
	// ErrWrongPhase indicates the action is not valid in the current phase.
	ErrWrongPhase = errors.New("game: action not valid in current phase")
	// ErrNotDrawer indicates a drawer-only action was attempted by a guesser.
	ErrNotDrawer = errors.New("game: only the current drawer may do that")
	// ErrDrawerCannotGuess indicates the drawer tried to submit a guess.
	ErrDrawerCannotGuess = errors.New("game: the drawer cannot guess")
	// ErrNotHost indicates a host-only action was attempted without the role.
	ErrNotHost = errors.New("game: only the host may do that")
	// ErrNotConnected indicates an action that must not queue was attempted
	// while the transport is down.
	ErrNotConnected = errors.New("game: transport not connected")
	// ErrSubmissionFailed indicates both the realtime and fallback drawing
	// submission paths failed.
	ErrSubmissionFailed = errors.New("game: drawing submission failed")
)

// connected reports whether the transport can deliver right now.
func (m *Machine) connected() bool {
	return m.tm.Status() == transport.StatusConnected
}

// emitGameEvent wraps an action in the generic game:event envelope. Actions
// attempted while disconnected degrade to a logged no-op: the server would
// have rejected a stale action after reconnect anyway, and queueing them
// silently risks acting in a phase that has since moved on.
func (m *Machine) emitGameEvent(action protocol.GameActionType, payload map[string]interface{}) error {
	if !m.connected() {
		m.log.WithField("action", action).Warn("transport down, dropping action")
		return nil
	}
	_, err := m.tm.Send(protocol.EventGameEvent, protocol.GameEventPayload{
		RoomID:  m.cfg.RoomID,
		Event:   action,
		Payload: payload,
	}, nil)
	return err
}

// SelectWord picks one of the offered words. Drawer-only, WORD_SELECTION only.
func (m *Machine) SelectWord(word string) error {
	m.mu.Lock()
	phase := m.snap.Phase
	isDrawer := m.snap.IsDrawer(m.cfg.Self.UserID)
	m.mu.Unlock()

	if phase != models.PhaseWordSelection {
		return fmt.Errorf("%w: %s", ErrWrongPhase, phase)
	}
	if !isDrawer {
		return ErrNotDrawer
	}
	return m.emitGameEvent(protocol.ActionSelectWord, map[string]interface{}{"word": word})
}

// SubmitGuess sends a text guess. Guessers only, GUESSING only. Fire and
// forget: the result comes back through the snapshot, not the send.
func (m *Machine) SubmitGuess(guess string) error {
	m.mu.Lock()
	phase := m.snap.Phase
	isDrawer := m.snap.IsDrawer(m.cfg.Self.UserID)
	m.mu.Unlock()

	if phase != models.PhaseGuessing {
		return fmt.Errorf("%w: %s", ErrWrongPhase, phase)
	}
	if isDrawer {
		return ErrDrawerCannotGuess
	}
	return m.emitGameEvent(protocol.ActionSubmitGuess, map[string]interface{}{"guess": guess})
}

// TriggerEvent is the host's escape hatch for round/game progression
// (NEXT_ROUND, END_GAME, START_GAME).
func (m *Machine) TriggerEvent(action protocol.GameActionType, payload map[string]interface{}) error {
	if !m.IsHost() {
		return ErrNotHost
	}
	return m.emitGameEvent(action, payload)
}

// SubmitDrawing uploads the round's image. Drawer-only, DRAWING only. Unlike
// the other actions it fails fast while disconnected: the submission is
// time-boxed by the round countdown, and a queued-but-late drawing is worse
// than a visible failure. The realtime path gets one timeout; on
// failure the same payload is retried once over the non-realtime fallback.
// Exactly one final error notification is shown if both fail.
func (m *Machine) SubmitDrawing(ctx context.Context, imageData string) error {
	m.mu.Lock()
	phase := m.snap.Phase
	isDrawer := m.snap.IsDrawer(m.cfg.Self.UserID)
	round := m.snap.CurrentRound
	m.mu.Unlock()

	if phase != models.PhaseDrawing {
		return fmt.Errorf("%w: %s", ErrWrongPhase, phase)
	}
	if !isDrawer {
		return ErrNotDrawer
	}
	if !m.connected() {
		m.ShowToast("error", "Not connected: drawing not submitted", 0)
		return ErrNotConnected
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.DrawTimeout)
	defer cancel()
	_, err := m.tm.SendAwait(sendCtx, protocol.EventGameEvent, protocol.GameEventPayload{
		RoomID: m.cfg.RoomID,
		Event:  protocol.ActionSubmitDrawing,
		Payload: map[string]interface{}{
			"imageData": imageData,
			"round":     round,
		},
	})
	if err == nil {
		m.ShowToast("success", "Drawing submitted", 0)
		return nil
	}

	m.log.Warnf("realtime drawing submission failed, trying fallback: %v", err)
	m.ShowToast("warning", "Submission slow, retrying", 0)

	if fbErr := m.submitDrawingFallback(ctx, imageData); fbErr != nil {
		m.log.Errorf("fallback drawing submission failed: %v", fbErr)
		m.ShowToast("error", "Drawing could not be submitted", 0)
		return fmt.Errorf("%w: realtime: %v; fallback: %v", ErrSubmissionFailed, err, fbErr)
	}
	m.ShowToast("success", "Drawing submitted", 0)
	return nil
}

// submitDrawingFallback posts the same payload over plain HTTP.
func (m *Machine) submitDrawingFallback(ctx context.Context, imageData string) error {
	if m.cfg.FallbackURL == "" {
		return errors.New("no fallback endpoint configured")
	}
	body, err := json.Marshal(map[string]string{"imageData": imageData})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.FallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.Self.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.Self.AuthToken)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fallback endpoint returned %s", resp.Status)
	}
	return nil
}

// SendChat sends a chat line. Chat is best-effort and allowed in any phase;
// while disconnected it rides the outbox like any other resilient message.
func (m *Machine) SendChat(text string) error {
	_, err := m.tm.Send(protocol.EventChatSend, protocol.ChatSendPayload{
		RoomID: m.cfg.RoomID,
		UserID: m.cfg.Self.UserID,
		Text:   text,
	}, nil)
	return err
}

// SetReady toggles our ready flag in the room.
func (m *Machine) SetReady(ready bool) error {
	_, err := m.tm.Send(protocol.EventRoomSetReady, protocol.SetReadyPayload{
		RoomID:  m.cfg.RoomID,
		UserID:  m.cfg.Self.UserID,
		IsReady: ready,
	}, nil)
	return err
}

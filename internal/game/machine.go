// internal/game/machine.go
package game

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drawdash/drawdash/internal/identity"
	"github.com/drawdash/drawdash/internal/models"
	"github.com/drawdash/drawdash/internal/protocol"
	"github.com/drawdash/drawdash/internal/scoring"
	"github.com/drawdash/drawdash/internal/transport"
)

const (
	// DefaultToastDuration is how long a transient notification stays visible
	// unless the sender specified its own duration.
	DefaultToastDuration = 4 * time.Second
	// DefaultDrawTimeout bounds a realtime drawing submission before the
	// fallback path kicks in.
	DefaultDrawTimeout = 15 * time.Second

	chatLogLimit = 200
)

// Transport is the slice of the connection manager the machine consumes.
// *transport.Manager satisfies it; tests substitute an in-memory fake.
type Transport interface {
	Status() transport.Status
	Send(event string, payload interface{}, onResult transport.ResultFunc) (queued bool, err error)
	SendAwait(ctx context.Context, event string, payload interface{}) (protocol.Ack, error)
	Subscribe(event string, h transport.Handler) func()
	CancelReconnect()
	Disconnect()
}

// Reporter is the external leaderboard reporting surface. Implementations
// must tolerate being called from the machine's event handlers; the machine
// always calls them from their own goroutine.
type Reporter interface {
	PublishScoreEvent(ctx context.Context, ev scoring.ScoreEvent) error
	PublishLeaderboard(ctx context.Context, roomID string, entries []scoring.LeaderboardEntry) error
}

// Config assembles a Machine. RoomID, Self and Transport are required.
type Config struct {
	RoomID     string
	AccessCode string
	Self       identity.Identity
	Transport  Transport
	Logger     *logrus.Logger

	// FallbackURL is the non-realtime endpoint for drawing submissions.
	FallbackURL string
	// HTTPClient overrides the client used for the fallback path.
	HTTPClient *http.Client

	// Reporter, when set, receives round-end score events and leaderboards.
	Reporter Reporter
	// History, when nil, is created with the default capacity.
	History *scoring.History

	ToastDuration time.Duration
	DrawTimeout   time.Duration
}

// Machine is the single owner of the in-memory game state for one room. It
// consumes transport events, applies validated phase transitions, and exposes
// the current snapshot plus a narrow, phase-gated action surface.
type Machine struct {
	cfg  Config
	log  *logrus.Logger
	tm   Transport
	http *http.Client

	mu          sync.Mutex
	snap        models.GameStateSnapshot
	toast       *Toast
	toastTimer  *time.Timer
	chat        []protocol.ChatMessage
	leaderboard []scoring.LeaderboardEntry
	scoreTimes  map[string]time.Time
	scoredRound int
	unsubs      []func()
	closed      bool

	history *scoring.History
}

// New builds a Machine around an attached transport. Call Start to subscribe
// and join the room.
func New(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ToastDuration <= 0 {
		cfg.ToastDuration = DefaultToastDuration
	}
	if cfg.DrawTimeout <= 0 {
		cfg.DrawTimeout = DefaultDrawTimeout
	}
	if cfg.History == nil {
		cfg.History = scoring.NewHistory(0)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Machine{
		cfg:  cfg,
		log:  cfg.Logger,
		tm:   cfg.Transport,
		http: httpClient,
		snap: models.GameStateSnapshot{
			RoomID: cfg.RoomID,
			Phase:  models.PhaseWaiting,
		},
		scoreTimes:  make(map[string]time.Time),
		scoredRound: -1,
		history:     cfg.History,
	}
}

// Start subscribes to the server's event surface, announces the join, and
// requests the initial snapshot. The server decides which phase we land in.
func (m *Machine) Start(ctx context.Context) error {
	subs := map[string]transport.Handler{
		protocol.EventGameStateUpdated: m.handleStateUpdated,
		protocol.EventGameTimeUpdate:   m.handleTimeUpdate,
		protocol.EventGameError:        m.handleGameError,
		protocol.EventUserNotification: m.handleNotification,
		protocol.EventChatMessage:      m.handleChat,
		protocol.EventRoomGameStarted:  m.handleGameStarted,
		protocol.EventRoomPlayerJoined: m.handleRosterChange,
		protocol.EventRoomPlayerLeft:   m.handleRosterChange,
		protocol.EventRoomPlayerReady:  m.handleRosterChange,
		protocol.EventRoomUpdated:      m.handleRosterChange,
		protocol.EventTransportStatus:  m.handleTransportStatus,
	}
	m.mu.Lock()
	for event, h := range subs {
		m.unsubs = append(m.unsubs, m.tm.Subscribe(event, h))
	}
	m.mu.Unlock()

	if _, err := m.tm.Send(protocol.EventRoomJoin, protocol.JoinRoomPayload{
		RoomID:     m.cfg.RoomID,
		UserID:     m.cfg.Self.UserID,
		AccessCode: m.cfg.AccessCode,
	}, nil); err != nil {
		return err
	}
	_, err := m.tm.Send(protocol.EventGameGetState, protocol.GetStatePayload{RoomID: m.cfg.RoomID}, nil)
	return err
}

// Snapshot returns a copy of the live game state.
func (m *Machine) Snapshot() models.GameStateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Phase returns the current phase.
func (m *Machine) Phase() models.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Phase
}

// Chat returns the retained chat log, oldest first.
func (m *Machine) Chat() []protocol.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.ChatMessage(nil), m.chat...)
}

// Leaderboard returns the most recent round-end leaderboard.
func (m *Machine) Leaderboard() []scoring.LeaderboardEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scoring.LeaderboardEntry(nil), m.leaderboard...)
}

// History exposes the score-event log backing this machine.
func (m *Machine) History() *scoring.History {
	return m.history
}

// IsHost reports whether our own identity currently holds the host role.
// Role is derived from the roster on every call, never stored.
func (m *Machine) IsHost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.IsHost(m.cfg.Self.UserID)
}

// IsDrawer reports whether we are the current round's drawer.
func (m *Machine) IsDrawer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.IsDrawer(m.cfg.Self.UserID)
}

// transition decides the next phase for an inbound phase announcement. It is
// total: any announcement that is not a defined phase leaves the machine
// where it is. Entering PAUSED records the interrupted phase so resuming can
// restore context-appropriate rendering.
func transition(current models.Phase, announced models.Phase) (next, previous models.Phase) {
	if !announced.Valid() {
		return current, ""
	}
	if announced == current {
		return current, ""
	}
	return announced, current
}

// handleStateUpdated applies a full or partial snapshot replace. The phase
// named in the payload becomes current; a later update always wins.
func (m *Machine) handleStateUpdated(raw json.RawMessage) {
	patch, err := models.ParseSnapshotPatch(raw)
	if err != nil {
		m.log.Warnf("discarding malformed state update: %v", err)
		return
	}

	m.mu.Lock()
	now := time.Now()
	entered := false
	if patch.Phase != nil {
		next, prev := transition(m.snap.Phase, *patch.Phase)
		if prev != "" {
			m.snap.PreviousPhase = prev
			entered = next == models.PhaseRoundEnd || next == models.PhaseGameEnd
		}
		m.snap.Phase = next
	}
	if patch.Scores != nil {
		for id, score := range patch.Scores {
			if m.snap.Scores[id] != score {
				m.scoreTimes[id] = now
			}
		}
	}
	m.snap.ApplyPatch(patch, now)
	m.reconcileDrawerLocked()
	m.mu.Unlock()

	// Aggregation runs on the transition into an end phase, not on every
	// update received while already there. A score correction or post-reconnect
	// resync inside ROUND_END must not replay the round's side effects.
	if entered {
		m.aggregateRoundEnd()
	}
}

// reconcileDrawerLocked clears a drawer reference that points outside the
// roster. The server owns role assignment; a mirror holding a drawer nobody
// can see would mis-gate every drawing action. Caller holds m.mu.
func (m *Machine) reconcileDrawerLocked() {
	if m.snap.CurrentDrawerID == "" {
		return
	}
	if m.snap.PlayerByID(m.snap.CurrentDrawerID) == nil {
		m.log.WithField("drawer", m.snap.CurrentDrawerID).
			Warn("drawer not on roster, clearing")
		m.snap.CurrentDrawerID = ""
	}
}

// handleTimeUpdate touches only the countdown, independent of phase.
func (m *Machine) handleTimeUpdate(raw json.RawMessage) {
	var p protocol.TimeUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	m.mu.Lock()
	m.snap.TimeRemainingMs = p.TimeRemainingMs
	m.mu.Unlock()
}

// handleGameError forces the ERROR phase. A server-declared game error means
// our mirror of the authoritative state is no longer trustworthy.
func (m *Machine) handleGameError(raw json.RawMessage) {
	var p protocol.GameErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	m.mu.Lock()
	if m.snap.Phase != models.PhaseError {
		m.snap.PreviousPhase = m.snap.Phase
	}
	m.snap.Phase = models.PhaseError
	m.snap.LastError = &models.GameError{Message: p.Message, Code: p.Code}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"code": p.Code, "room": m.cfg.RoomID}).
		Errorf("server game error: %s", p.Message)
	m.ShowToast("error", p.Message, 0)
}

// handleNotification surfaces a transient toast.
func (m *Machine) handleNotification(raw json.RawMessage) {
	var p protocol.NotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	m.ShowToast(p.Type, p.Message, time.Duration(p.DurationMs)*time.Millisecond)
}

// handleChat appends to the bounded chat log.
func (m *Machine) handleChat(raw json.RawMessage) {
	var msg protocol.ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	m.mu.Lock()
	m.chat = append(m.chat, msg)
	if len(m.chat) > chatLogLimit {
		m.chat = m.chat[len(m.chat)-chatLogLimit:]
	}
	m.mu.Unlock()
}

// handleGameStarted marks the phase entry; the authoritative snapshot follows
// in a stateUpdated push.
func (m *Machine) handleGameStarted(json.RawMessage) {
	m.mu.Lock()
	next, prev := transition(m.snap.Phase, models.PhaseStarting)
	if prev != "" {
		m.snap.PreviousPhase = prev
	}
	m.snap.Phase = next
	m.mu.Unlock()
}

// roomUpdatePayload is the roster-bearing envelope of room:* broadcasts.
type roomUpdatePayload struct {
	Room struct {
		Players []models.Player `json:"players"`
	} `json:"room"`
}

// handleRosterChange replaces the roster from a room broadcast.
func (m *Machine) handleRosterChange(raw json.RawMessage) {
	var p roomUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Room.Players == nil {
		return
	}
	m.mu.Lock()
	m.snap.Players = p.Room.Players
	m.snap.LastUpdated = time.Now()
	m.reconcileDrawerLocked()
	m.mu.Unlock()
}

// handleTransportStatus re-requests the snapshot after a reconnect so the
// mirror catches up with whatever happened during the outage.
func (m *Machine) handleTransportStatus(raw json.RawMessage) {
	var p protocol.TransportStatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if transport.Status(p.Status) != transport.StatusConnected {
		return
	}
	if _, err := m.tm.Send(protocol.EventGameGetState, protocol.GetStatePayload{RoomID: m.cfg.RoomID}, nil); err != nil {
		m.log.Warnf("state refresh after reconnect failed: %v", err)
	}
}

// aggregateRoundEnd folds the finished round through the scoring engine:
// local leaderboard math plus history/reporting of the round's guesses.
// Scores arrive pre-computed from the server; the engine supplies ordering,
// levels, and the append-only event log.
func (m *Machine) aggregateRoundEnd() {
	m.mu.Lock()
	standings := make([]scoring.PlayerStanding, 0, len(m.snap.Players))
	for _, p := range m.snap.Players {
		standings = append(standings, scoring.PlayerStanding{
			PlayerID:   p.ID,
			Name:       p.DisplayName,
			Score:      m.snap.Scores[p.ID],
			LastChange: m.scoreTimes[p.ID],
		})
	}
	round := m.snap.CurrentRound
	alreadyScored := round == m.scoredRound
	m.scoredRound = round
	guesses := append([]models.Guess(nil), m.snap.Guesses...)
	roomID := m.snap.RoomID
	entries := scoring.GenerateLeaderboard(standings)
	m.leaderboard = entries
	m.mu.Unlock()

	// A round's guesses enter the history once. ROUND_END followed by GAME_END
	// for the same round refreshes the leaderboard without re-registering them.
	var events []scoring.ScoreEvent
	if !alreadyScored {
		for _, g := range guesses {
			if g.Round != round {
				continue
			}
			typ := scoring.EventMiss
			if g.Correct {
				typ = scoring.EventHit
			}
			events = append(events, m.history.RegisterScoreEvent(scoring.ScoreEvent{
				PlayerID: g.UserID,
				Type:     typ,
			}))
		}
	}

	if m.cfg.Reporter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, ev := range events {
			if err := m.cfg.Reporter.PublishScoreEvent(ctx, ev); err != nil {
				m.log.Warnf("score event publish failed: %v", err)
			}
		}
		if err := m.cfg.Reporter.PublishLeaderboard(ctx, roomID, entries); err != nil {
			m.log.Warnf("leaderboard publish failed: %v", err)
		}
	}()
}

// Close tears the room membership down: unsubscribe every handler, cancel any
// pending reconnect, notify the server of departure, then close the transport, in
// that order, on every exit path.
func (m *Machine) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubs := m.unsubs
	m.unsubs = nil
	m.clearToastTimerLocked()
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	m.tm.CancelReconnect()
	if _, err := m.tm.Send(protocol.EventRoomLeave, protocol.LeaveRoomPayload{
		RoomID: m.cfg.RoomID,
		UserID: m.cfg.Self.UserID,
	}, nil); err != nil {
		m.log.Warnf("leave notice failed: %v", err)
	}
	m.tm.Disconnect()
	m.log.WithField("room", m.cfg.RoomID).Info("room teardown complete")
}

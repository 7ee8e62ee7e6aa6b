// internal/game/machine_test.go
package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdash/drawdash/internal/identity"
	"github.com/drawdash/drawdash/internal/models"
	"github.com/drawdash/drawdash/internal/protocol"
	"github.com/drawdash/drawdash/internal/transport"
)

// sentMsg records one outbound message the machine handed to the transport.
type sentMsg struct {
	event   string
	payload interface{}
}

// fakeTransport is an in-memory Transport that records sends and lets tests
// push inbound events synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	status   transport.Status
	sent     []sentMsg
	handlers map[string][]transport.Handler
	awaitErr error
	calls    []string // ordered method log for teardown assertions
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status:   transport.StatusConnected,
		handlers: make(map[string][]transport.Handler),
	}
}

func (f *fakeTransport) Status() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) setStatus(s transport.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

func (f *fakeTransport) Send(event string, payload interface{}, onResult transport.ResultFunc) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{event: event, payload: payload})
	f.calls = append(f.calls, "send:"+event)
	if f.status != transport.StatusConnected {
		return true, nil
	}
	if onResult != nil {
		go onResult(protocol.Ack{Seq: 1, OK: true})
	}
	return false, nil
}

func (f *fakeTransport) SendAwait(ctx context.Context, event string, payload interface{}) (protocol.Ack, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{event: event, payload: payload})
	err := f.awaitErr
	f.mu.Unlock()
	if err != nil {
		return protocol.Ack{}, err
	}
	return protocol.Ack{Seq: 1, OK: true}, nil
}

func (f *fakeTransport) Subscribe(event string, h transport.Handler) func() {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], h)
	idx := len(f.handlers[event]) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handlers[event][idx] = nil
		f.calls = append(f.calls, "unsub:"+event)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) CancelReconnect() {
	f.mu.Lock()
	f.calls = append(f.calls, "cancelReconnect")
	f.mu.Unlock()
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.calls = append(f.calls, "disconnect")
	f.mu.Unlock()
}

// push delivers an inbound event to every live subscriber, like the manager's
// read loop would.
func (f *fakeTransport) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	hs := append([]transport.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(raw)
		}
	}
}

func (f *fakeTransport) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.event
	}
	return out
}

func newTestMachine(t *testing.T, mutate func(*Config)) (*Machine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	cfg := Config{
		RoomID:    "r1",
		Self:      identity.Identity{UserID: "u1", DisplayName: "Ana"},
		Transport: ft,
		Logger:    log,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m := New(cfg)
	require.NoError(t, m.Start(context.Background()))
	return m, ft
}

func TestStartJoinsAndRequestsState(t *testing.T) {
	_, ft := newTestMachine(t, nil)
	assert.Equal(t, []string{protocol.EventRoomJoin, protocol.EventGameGetState}, ft.sentEvents())
}

func TestSnapshotReplaceRecordsPreviousPhase(t *testing.T) {
	m, ft := newTestMachine(t, nil)

	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{
		"phase":           "DRAWING",
		"currentRound":    2,
		"totalRounds":     5,
		"currentDrawerId": "u1",
		"players": []models.Player{
			{ID: "u1", DisplayName: "Ana", IsHost: true},
			{ID: "u2", DisplayName: "Bea"},
		},
	})

	snap := m.Snapshot()
	assert.Equal(t, models.PhaseDrawing, snap.Phase)
	assert.Equal(t, models.PhaseWaiting, snap.PreviousPhase)
	assert.Equal(t, 2, snap.CurrentRound)
	assert.True(t, m.IsDrawer())
	assert.True(t, m.IsHost())

	// A later update always wins.
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "GUESSING"})
	snap = m.Snapshot()
	assert.Equal(t, models.PhaseGuessing, snap.Phase)
	assert.Equal(t, models.PhaseDrawing, snap.PreviousPhase)
	assert.Equal(t, 2, snap.CurrentRound, "partial update must not clear untouched fields")
}

func TestUndefinedPhaseLeavesMachineInPlace(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "DRAWING"})
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "LIMBO"})
	assert.Equal(t, models.PhaseDrawing, m.Phase())
}

func TestTransitionIsTotal(t *testing.T) {
	phases := []models.Phase{
		models.PhaseWaiting, models.PhaseStarting, models.PhaseWordSelection,
		models.PhaseDrawing, models.PhaseGuessing, models.PhaseRoundEnd,
		models.PhaseGameEnd, models.PhasePaused, models.PhaseError,
	}
	announcements := append([]models.Phase{"", "BOGUS", "drawing"}, phases...)
	for _, current := range phases {
		for _, announced := range announcements {
			next, _ := transition(current, announced)
			assert.True(t, next.Valid(), "transition(%s, %s) left an undefined phase %q", current, announced, next)
		}
	}
}

func TestPauseRemembersInterruptedPhase(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "GUESSING"})
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "PAUSED"})

	snap := m.Snapshot()
	assert.Equal(t, models.PhasePaused, snap.Phase)
	assert.Equal(t, models.PhaseGuessing, snap.PreviousPhase)
}

func TestTimeUpdateOnlyTouchesCountdown(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "DRAWING", "currentRound": 3})
	ft.push(t, protocol.EventGameTimeUpdate, protocol.TimeUpdatePayload{TimeRemainingMs: 42000})

	snap := m.Snapshot()
	assert.Equal(t, int64(42000), snap.TimeRemainingMs)
	assert.Equal(t, models.PhaseDrawing, snap.Phase)
	assert.Equal(t, 3, snap.CurrentRound)
}

func TestServerGameErrorEscalates(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "DRAWING"})
	ft.push(t, protocol.EventGameError, protocol.GameErrorPayload{Message: "room state corrupt", Code: "E_STATE"})

	snap := m.Snapshot()
	assert.Equal(t, models.PhaseError, snap.Phase)
	assert.Equal(t, models.PhaseDrawing, snap.PreviousPhase)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "E_STATE", snap.LastError.Code)

	toast := m.Toast()
	require.NotNil(t, toast)
	assert.Equal(t, "error", toast.Type)
}

func TestGameStartedEntersStarting(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventRoomGameStarted, map[string]interface{}{})
	assert.Equal(t, models.PhaseStarting, m.Phase())
}

func TestRosterChangeReplacesPlayers(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventRoomPlayerJoined, map[string]interface{}{
		"room": map[string]interface{}{
			"players": []models.Player{{ID: "u1", DisplayName: "Ana"}, {ID: "u2", DisplayName: "Bea", IsReady: true}},
		},
	})
	snap := m.Snapshot()
	require.Len(t, snap.Players, 2)
	assert.True(t, snap.Players[1].IsReady)

	ft.push(t, protocol.EventRoomPlayerLeft, map[string]interface{}{
		"room": map[string]interface{}{"players": []models.Player{{ID: "u1", DisplayName: "Ana"}}},
	})
	require.Len(t, m.Snapshot().Players, 1)
}

func TestDrawerOutsideRosterIsCleared(t *testing.T) {
	m, ft := newTestMachine(t, nil)

	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{
		"phase":           "DRAWING",
		"currentDrawerId": "ghost",
		"players":         []models.Player{{ID: "u1", DisplayName: "Ana"}},
	})
	assert.Empty(t, m.Snapshot().CurrentDrawerID, "a drawer nobody can see must not gate actions")

	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{
		"currentDrawerId": "u2",
		"players":         []models.Player{{ID: "u1", DisplayName: "Ana"}, {ID: "u2", DisplayName: "Bea"}},
	})
	require.Equal(t, "u2", m.Snapshot().CurrentDrawerID)

	// A roster replacement that drops the drawer clears the stale reference.
	ft.push(t, protocol.EventRoomPlayerLeft, map[string]interface{}{
		"room": map[string]interface{}{"players": []models.Player{{ID: "u1", DisplayName: "Ana"}}},
	})
	assert.Empty(t, m.Snapshot().CurrentDrawerID)
}

func TestChatLogIsBounded(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	for i := 0; i < chatLogLimit+10; i++ {
		ft.push(t, protocol.EventChatMessage, protocol.ChatMessage{SenderID: "u2", Text: "hi"})
	}
	assert.Len(t, m.Chat(), chatLogLimit)
}

func TestToastExpiryIsKeyedToItsOwnID(t *testing.T) {
	m, _ := newTestMachine(t, nil)

	m.ShowToast("info", "first", 30*time.Millisecond)
	m.ShowToast("info", "second", time.Hour)

	// The first toast's timer fires while the second is showing; it must not
	// clear it.
	time.Sleep(80 * time.Millisecond)
	toast := m.Toast()
	require.NotNil(t, toast)
	assert.Equal(t, "second", toast.Message)
}

func TestNotificationTumblesIntoToast(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventUserNotification, protocol.NotificationPayload{
		Type: "info", Message: "next round soon", DurationMs: 30,
	})
	toast := m.Toast()
	require.NotNil(t, toast)
	assert.Equal(t, "next round soon", toast.Message)

	assert.Eventually(t, func() bool { return m.Toast() == nil },
		time.Second, 10*time.Millisecond, "toast should auto-expire")
}

func TestReconnectRefreshesSnapshot(t *testing.T) {
	_, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventTransportStatus, protocol.TransportStatusPayload{Status: string(transport.StatusConnected)})

	events := ft.sentEvents()
	assert.Equal(t, protocol.EventGameGetState, events[len(events)-1])
}

func TestCloseRunsTeardownInOrder(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	m.Close(context.Background())

	ft.mu.Lock()
	calls := append([]string(nil), ft.calls...)
	ft.mu.Unlock()

	// Every unsubscribe must come before the reconnect cancel, the leave
	// notice, and the final disconnect, in that order.
	var idxCancel, idxLeave, idxDisconnect, lastUnsub int
	for i, c := range calls {
		switch c {
		case "cancelReconnect":
			idxCancel = i
		case "send:" + protocol.EventRoomLeave:
			idxLeave = i
		case "disconnect":
			idxDisconnect = i
		default:
			if len(c) > 6 && c[:6] == "unsub:" {
				lastUnsub = i
			}
		}
	}
	assert.Greater(t, idxCancel, lastUnsub)
	assert.Greater(t, idxLeave, idxCancel)
	assert.Greater(t, idxDisconnect, idxLeave)

	// Idempotent: a second close neither panics nor repeats the teardown.
	before := len(calls)
	m.Close(context.Background())
	ft.mu.Lock()
	assert.Len(t, ft.calls, before)
	ft.mu.Unlock()
}

func TestClosedMachineIgnoresInFlightEvents(t *testing.T) {
	m, ft := newTestMachine(t, nil)
	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "DRAWING"})
	m.Close(context.Background())

	ft.push(t, protocol.EventGameStateUpdated, map[string]interface{}{"phase": "GUESSING"})
	assert.Equal(t, models.PhaseDrawing, m.Phase(), "unsubscribed handlers must not fire")
}

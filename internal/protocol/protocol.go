// internal/protocol/protocol.go
package protocol

import "encoding/json"

// Wire event names for the client -> server direction.
const (
	EventRoomJoin     = "room:join"
	EventRoomLeave    = "room:leave"
	EventRoomSetReady = "room:setReady"
	EventChatSend     = "chat:send"
	EventGameGetState = "game:getState"
	EventGameEvent    = "game:event"
)

// Wire event names for the server -> client direction.
const (
	EventRoomPlayerJoined = "room:playerJoined"
	EventRoomPlayerLeft   = "room:playerLeft"
	EventRoomPlayerReady  = "room:playerReady"
	EventRoomUpdated      = "room:updated"
	EventRoomGameStarted  = "room:gameStarted"
	EventChatMessage      = "chat:message"
	EventGameStateUpdated = "game:stateUpdated"
	EventGameTimeUpdate   = "game:timeUpdate"
	EventGameError        = "game:error"
	EventUserNotification = "user:notification"
)

// EventAck is the server's delivery acknowledgment for a sequenced frame.
const EventAck = "ack"

// Reserved local event names. These are never sent over the wire; the
// transport dispatches them to subscribers the same way as server events so
// consumers only need one subscription mechanism.
const (
	EventTransportError  = "transport:error"
	EventTransportStatus = "transport:status"
)

// GameActionType identifies the sub-action carried inside a game:event envelope.
type GameActionType string

const (
	ActionSelectWord    GameActionType = "SELECT_WORD"
	ActionSubmitDrawing GameActionType = "SUBMIT_DRAWING"
	ActionSubmitGuess   GameActionType = "SUBMIT_GUESS"
	ActionNextRound     GameActionType = "NEXT_ROUND"
	ActionEndGame       GameActionType = "END_GAME"
	ActionStartGame     GameActionType = "START_GAME"
)

// Frame is the envelope every websocket message travels in, both directions.
// Seq is assigned by the sender for frames that want a delivery ack; 0 means
// no ack is expected.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
}

// Ack is the payload of an EventAck frame, echoing the client's Seq.
type Ack struct {
	Seq   uint64 `json:"seq"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// --- Outbound payloads ---

type JoinRoomPayload struct {
	RoomID     string `json:"roomId"`
	UserID     string `json:"userId"`
	AccessCode string `json:"accessCode,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type SetReadyPayload struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	IsReady bool   `json:"isReady"`
}

type ChatSendPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

type GetStatePayload struct {
	RoomID string `json:"roomId"`
}

// GameEventPayload is the generic action envelope for round/game progression
// and in-round actions (word selection, guesses, etc.).
type GameEventPayload struct {
	RoomID  string                 `json:"roomId"`
	Event   GameActionType         `json:"event"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// --- Inbound payloads ---

type ChatMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	IsSystem   bool   `json:"isSystem,omitempty"`
}

type TimeUpdatePayload struct {
	TimeRemainingMs int64 `json:"timeRemainingMs"`
}

type GameErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type NotificationPayload struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	DurationMs int64  `json:"duration,omitempty"`
}

// TransportStatusPayload is dispatched on EventTransportStatus whenever the
// connection status changes.
type TransportStatusPayload struct {
	Status string `json:"status"`
}

// TransportErrorPayload is dispatched on EventTransportError for
// transport-level failures (dial errors, dropped connections, send failures).
type TransportErrorPayload struct {
	Message string `json:"message"`
}

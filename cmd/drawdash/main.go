// cmd/drawdash/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/drawdash/drawdash/internal/game"
	"github.com/drawdash/drawdash/internal/identity"
	"github.com/drawdash/drawdash/internal/protocol"
	"github.com/drawdash/drawdash/internal/report"
	"github.com/drawdash/drawdash/internal/transport"
)

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// main runs a minimal terminal client: join a room, print chat and state
// changes, leave cleanly on interrupt.
func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	self := identity.Identity{
		UserID:      getEnv("DRAWDASH_USER_ID", ""),
		DisplayName: getEnv("DRAWDASH_DISPLAY_NAME", ""),
		AuthToken:   os.Getenv("DRAWDASH_AUTH_TOKEN"),
	}
	roomID := getEnv("DRAWDASH_ROOM_ID", "")
	if self.UserID == "" || roomID == "" {
		logger.Fatal("DRAWDASH_USER_ID and DRAWDASH_ROOM_ID must be set")
	}

	tm := transport.NewManager(transport.Config{
		URL:    getEnv("DRAWDASH_WS_URL", "ws://localhost:8080/rooms/ws"),
		Logger: logger,
	})

	ctx := context.Background()

	var reporter game.Reporter
	if os.Getenv("REDIS_ADDR") != "" {
		q, err := report.ConnectFromEnv(ctx)
		if err != nil {
			logger.Warnf("score reporting disabled: %v", err)
		} else {
			reporter = q
		}
	}

	m := game.New(game.Config{
		RoomID:      roomID,
		AccessCode:  os.Getenv("DRAWDASH_ACCESS_CODE"),
		Self:        self,
		Transport:   tm,
		Logger:      logger,
		FallbackURL: os.Getenv("DRAWDASH_FALLBACK_URL"),
		Reporter:    reporter,
	})

	tm.Subscribe(protocol.EventChatMessage, func(payload json.RawMessage) {
		var msg protocol.ChatMessage
		if json.Unmarshal(payload, &msg) == nil {
			fmt.Printf("[chat] %s: %s\n", msg.SenderName, msg.Text)
		}
	})
	tm.Subscribe(protocol.EventGameStateUpdated, func(json.RawMessage) {
		snap := m.Snapshot()
		fmt.Printf("[state] phase=%s round=%d/%d players=%d\n",
			snap.Phase, snap.CurrentRound, snap.TotalRounds, len(snap.Players))
	})
	tm.Subscribe(protocol.EventUserNotification, func(json.RawMessage) {
		if toast := m.Toast(); toast != nil {
			fmt.Printf("[%s] %s\n", toast.Type, toast.Message)
		}
	})

	if err := tm.Connect(ctx, self); err != nil {
		logger.Fatalf("connect failed: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		logger.Fatalf("room join failed: %v", err)
	}
	logger.Infof("joined room %s as %s", roomID, self.DisplayName)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	m.Close(ctx)
}

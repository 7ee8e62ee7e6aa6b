// internal/game/toast.go
package game

import (
	"time"

	"github.com/google/uuid"
)

// Toast is a transient user-facing notification. Expiry is keyed to the
// toast's own ID: a timer armed for an earlier toast can never clear a later
// one that replaced it.
type Toast struct {
	ID       uuid.UUID     `json:"id"`
	Type     string        `json:"type"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	ShownAt  time.Time     `json:"shownAt"`
}

// ShowToast replaces whatever toast is showing and arms its expiry. A zero
// duration uses the machine's default.
func (m *Machine) ShowToast(kind, message string, duration time.Duration) {
	if duration <= 0 {
		duration = m.cfg.ToastDuration
	}
	toast := &Toast{
		ID:       uuid.New(),
		Type:     kind,
		Message:  message,
		Duration: duration,
		ShownAt:  time.Now(),
	}

	m.mu.Lock()
	m.clearToastTimerLocked()
	m.toast = toast
	m.toastTimer = time.AfterFunc(duration, func() {
		m.expireToast(toast.ID)
	})
	m.mu.Unlock()
}

// Toast returns the currently visible toast, or nil.
func (m *Machine) Toast() *Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toast == nil {
		return nil
	}
	copied := *m.toast
	return &copied
}

// expireToast clears the toast only if it is still the one the timer was
// armed for.
func (m *Machine) expireToast(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toast != nil && m.toast.ID == id {
		m.toast = nil
		m.toastTimer = nil
	}
}

func (m *Machine) clearToastTimerLocked() {
	if m.toastTimer != nil {
		m.toastTimer.Stop()
		m.toastTimer = nil
	}
}

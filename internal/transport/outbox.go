// internal/transport/outbox.go
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/drawdash/drawdash/internal/protocol"
)

// outboxEntry is one not-yet-delivered outbound message held while
// disconnected, keeping its original completion callback.
type outboxEntry struct {
	event    string
	payload  interface{}
	onResult ResultFunc
}

// Send dispatches an event immediately when connected. While disconnected it
// appends the message to the offline outbox and reports success ("queued")
// instead of failing; the message is delivered in FIFO order on reconnect
// with its callback intact. Queued reports whether the message was buffered.
func (m *Manager) Send(event string, payload interface{}, onResult ResultFunc) (queued bool, err error) {
	return m.send(event, payload, onResult, true)
}

func (m *Manager) send(event string, payload interface{}, onResult ResultFunc, allowQueue bool) (queued bool, err error) {
	m.mu.Lock()
	if m.status != StatusConnected || m.conn == nil {
		if !allowQueue {
			m.mu.Unlock()
			return false, fmt.Errorf("transport: %s: %w", event, ErrNotConnected)
		}
		m.enqueueLocked(outboxEntry{event: event, payload: payload, onResult: onResult})
		m.mu.Unlock()
		return true, nil
	}
	conn := m.conn
	frame, seq, err := m.buildFrameLocked(event, payload, onResult)
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	if err := m.writeFrame(conn, frame); err != nil {
		m.dropPending(seq)
		return false, err
	}
	return false, nil
}

// SendAwait sends an event and blocks until the server's delivery ack arrives
// or ctx expires. It composes Send's callback into a synchronous result so
// callers can apply their own timeout policy (e.g. the drawing submission's
// 15 second deadline). An await-style send never rides the outbox: while
// disconnected it fails immediately with ErrNotConnected instead of leaving a
// copy behind to be replayed on reconnect.
func (m *Manager) SendAwait(ctx context.Context, event string, payload interface{}) (protocol.Ack, error) {
	ackCh := make(chan protocol.Ack, 1)
	_, err := m.send(event, payload, func(ack protocol.Ack) {
		ackCh <- ack
	}, false)
	if err != nil {
		return protocol.Ack{}, err
	}
	select {
	case ack := <-ackCh:
		if !ack.OK {
			return ack, fmt.Errorf("transport: %s rejected: %s", event, ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		return protocol.Ack{}, fmt.Errorf("transport: awaiting ack for %s: %w", event, ctx.Err())
	}
}

// enqueueLocked appends to the bounded outbox, evicting the oldest entry on
// overflow and failing its callback. Caller holds m.mu.
func (m *Manager) enqueueLocked(entry outboxEntry) {
	if len(m.outbox) >= m.cfg.OutboxLimit {
		evicted := m.outbox[0]
		m.outbox = m.outbox[1:]
		m.log.Warnf("outbox full (%d), evicting oldest message %q", m.cfg.OutboxLimit, evicted.event)
		if evicted.onResult != nil {
			go evicted.onResult(protocol.Ack{OK: false, Error: ErrOutboxOverflow.Error()})
		}
	}
	m.outbox = append(m.outbox, entry)
	m.log.WithField("event", entry.event).Debug("queued message while disconnected")
}

// flushOutbox delivers queued messages in strict enqueue order, one at a
// time, stopping early if the connection drops mid-flush (the remainder stays
// queued for the next reconnect).
func (m *Manager) flushOutbox() {
	for {
		m.mu.Lock()
		if m.status != StatusConnected || m.conn == nil || len(m.outbox) == 0 {
			m.mu.Unlock()
			return
		}
		entry := m.outbox[0]
		m.outbox = m.outbox[1:]
		conn := m.conn
		frame, seq, err := m.buildFrameLocked(entry.event, entry.payload, entry.onResult)
		m.mu.Unlock()

		if err != nil {
			m.log.Errorf("dropping unmarshalable queued message %q: %v", entry.event, err)
			continue
		}
		if err := m.writeFrame(conn, frame); err != nil {
			// writeFrame already routed the failure; requeue at the front so
			// order is preserved for the next flush.
			m.dropPending(seq)
			m.mu.Lock()
			m.outbox = append([]outboxEntry{entry}, m.outbox...)
			m.mu.Unlock()
			return
		}
	}
}

// buildFrameLocked marshals a frame, assigning a sequence number and
// registering the pending callback when one is supplied. Caller holds m.mu.
func (m *Manager) buildFrameLocked(event string, payload interface{}, onResult ResultFunc) ([]byte, uint64, error) {
	frame := protocol.Frame{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("transport: marshal %s payload: %w", event, err)
		}
		frame.Payload = raw
	}
	if onResult != nil {
		m.nextSeq++
		frame.Seq = m.nextSeq
		m.pending[frame.Seq] = onResult
	}
	data, err := json.Marshal(frame)
	return data, frame.Seq, err
}

// dropPending forgets a registered callback after a failed write so a later
// ack for a reassigned sequence can never fire it twice.
func (m *Manager) dropPending(seq uint64) {
	if seq == 0 {
		return
	}
	m.mu.Lock()
	delete(m.pending, seq)
	m.mu.Unlock()
}

// writeFrame writes one text frame with a bounded deadline. Write failures
// are reported on the error channel, never panicked.
func (m *Manager) writeFrame(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		m.log.Warnf("write failed: %v", err)
		m.emitError(err)
		return err
	}
	return nil
}

package server

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

// SSE event names.
const (
	eventState  = "state"
	eventClosed = "closed"
)

// subscriberBuffer bounds how far a slow SSE client may fall behind before
// it starts losing events.
const subscriberBuffer = 64

// Broker fans out playground store commits to SSE subscribers. Each session
// with at least one subscriber has a single store listener; the listener is
// removed when the last subscriber leaves.
type Broker struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*topic
}

type topic struct {
	unsubscribe func()
	subscribers map[chan []byte]struct{}
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:   logger,
		sessions: make(map[uuid.UUID]*topic),
	}
}

// Subscribe returns a channel that receives SSE-formatted events for sess.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe(sess *sessions.Session) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.sessions[sess.ID]
	if !ok {
		t = &topic{subscribers: make(map[chan []byte]struct{})}
		id := sess.ID
		t.unsubscribe = sess.Store.Subscribe(func(st playground.State) {
			b.publish(id, st)
		})
		b.sessions[id] = t
	}
	t.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel and closes it. Unknown channels,
// including ones already closed by CloseSession, are ignored.
func (b *Broker) Unsubscribe(id uuid.UUID, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.sessions[id]
	if !ok {
		return
	}
	if _, ok := t.subscribers[ch]; !ok {
		return
	}
	delete(t.subscribers, ch)
	close(ch)
	if len(t.subscribers) == 0 {
		t.unsubscribe()
		delete(b.sessions, id)
	}
}

// CloseSession sends a final closed event to every subscriber of a session
// and disconnects them.
func (b *Broker) CloseSession(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.sessions[id]
	if !ok {
		return
	}
	event := formatSSE(eventClosed, 0, []byte(`{"session_id":"`+id.String()+`"}`))
	for ch := range t.subscribers {
		select {
		case ch <- event:
		default:
		}
		close(ch)
	}
	t.unsubscribe()
	delete(b.sessions, id)
}

// Subscribers returns the number of subscribers of a session.
func (b *Broker) Subscribers(id uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.sessions[id]; ok {
		return len(t.subscribers)
	}
	return 0
}

// publish encodes a committed state once and broadcasts it.
func (b *Broker) publish(id uuid.UUID, st playground.State) {
	data, err := encodeState(st)
	if err != nil {
		b.logger.Error("broker: encode state", "session_id", id, "version", st.Version, "error", err)
		return
	}
	b.broadcast(id, formatSSE(eventState, st.Version, data))
}

func encodeState(st playground.State) ([]byte, error) {
	return json.Marshal(st)
}

// broadcast sends an event to all subscribers of a session. Slow subscribers
// that have a full buffer are skipped (their event is dropped) to prevent one
// slow client from blocking the store's commit path.
func (b *Broker) broadcast(id uuid.UUID, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.sessions[id]
	if !ok {
		return
	}
	for ch := range t.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Debug("broker: subscriber buffer full, dropping event", "session_id", id)
		}
	}
}

// formatSSE formats one Server-Sent Events message. A non-zero version is
// sent as the event id so clients can tell which commit they last saw.
func formatSSE(eventType string, version uint64, data []byte) []byte {
	out := make([]byte, 0, len(data)+48)
	out = append(out, "event: "...)
	out = append(out, eventType...)
	out = append(out, '\n')
	if version > 0 {
		out = append(out, "id: "...)
		out = strconv.AppendUint(out, version, 10)
		out = append(out, '\n')
	}
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out
}

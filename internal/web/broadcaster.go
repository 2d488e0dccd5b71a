package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/dxlhw/internal/logic/control"
)

// Event types carried on the status stream.
const (
	EventLog    = "log"
	EventStatus = "status"
	EventSwitch = "switch"
)

// StatusEvent is one message of the SSE stream.
type StatusEvent struct {
	Time  string      `json:"t"`
	Type  string      `json:"type"`
	Level string      `json:"l,omitempty"`
	Msg   string      `json:"msg,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// StatusBroadcaster distributes events to every SSE client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// slow client, drop
		}
	}
}

// Broadcast sends a log line to all clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Type: EventLog, Level: level, Msg: msg})
}

// BroadcastMsg sends an info line to all clients.
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Publish sends a typed payload (status snapshot, switch result) to all clients.
func (b *StatusBroadcaster) Publish(typ string, data interface{}) {
	b.send(StatusEvent{Type: typ, Data: data})
}

// StatusPublisher returns a control.Manager status listener that forwards at
// most one snapshot per interval. It is called from the control loop and never blocks.
func StatusPublisher(b *StatusBroadcaster, interval time.Duration) func(control.Status) {
	var last time.Time
	return func(st control.Status) {
		if st.Time.Sub(last) < interval {
			return
		}
		last = st.Time
		if b.Clients() > 0 {
			b.Publish(EventStatus, st)
		}
	}
}

// SwitchPublisher returns a control.Manager switch listener that publishes
// every switch result.
func SwitchPublisher(b *StatusBroadcaster) func(control.SwitchResult) {
	return func(res control.SwitchResult) {
		b.Publish(EventSwitch, res)
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(levelOf(msg), msg)
	}
	return len(p), nil
}

// levelOf extracts the level from a logrus text line ("level=warning ...").
func levelOf(line string) string {
	i := strings.Index(line, "level=")
	if i < 0 {
		return "info"
	}
	rest := line[i+len("level="):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// Package sse implements a Server-Sent Events broker for live validation
// updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ModelEvent is the payload of a model.* event.
type ModelEvent struct {
	Path string `json:"path"`
	Run  any    `json:"run,omitempty"`
}

// Event types.
const (
	TypeModelPrefix      = "model."
	TypeWorkspaceUpdated = "workspace.updated"
)

const defaultHeartbeat = 15 * time.Second

// Filter narrows the model.* events a subscriber receives. Other events
// are delivered to every subscriber.
type Filter struct {
	// Prefix keeps model files whose path starts with it.
	Prefix string
	// Kinds keeps the listed event kinds (validated, failed, deleted).
	// Empty keeps all.
	Kinds []string
}

func (f Filter) match(kind, path string) bool {
	if !strings.HasPrefix(path, f.Prefix) {
		return false
	}
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, kind)
}

type subscription struct {
	ch     chan []byte
	filter Filter
}

type message struct {
	event Event
	// kind and path are set for model events and drive filtering.
	kind string
	path string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the subscriber set, the event id
// counter and the workspace throttle timestamp. Public methods talk to it
// over channels.
type Broker struct {
	workspaceMin time.Duration
	heartbeat    time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	messageCh     chan message
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given interval between
// workspace.updated events.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		workspaceMin:  throttle,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		messageCh:     make(chan message, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan []byte]Filter)
	var (
		lastWorkspace time.Time
		nextID        uint64
	)

	send := func(msg message) {
		payload, err := json.Marshal(msg.event.Data)
		if err != nil {
			return
		}
		nextID++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", nextID, msg.event.Type, payload))

		for ch, f := range subs {
			if msg.kind != "" && !f.match(msg.kind, msg.path) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			subs[sub.ch] = sub.filter

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case msg := <-b.messageCh:
			send(msg)
			if msg.kind == "" {
				continue
			}
			if now := time.Now(); now.Sub(lastWorkspace) >= b.workspaceMin {
				lastWorkspace = now
				send(message{event: Event{Type: TypeWorkspaceUpdated, Data: map[string]string{}}})
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the event loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client whose model events pass f and returns its
// channel.
func (b *Broker) Subscribe(f Filter) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, filter: f}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

func (b *Broker) enqueue(msg message) {
	if b.closed.Load() {
		return
	}
	select {
	case b.messageCh <- msg:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.enqueue(message{event: event})
}

// PublishModelEvent publishes model.<kind> for path and a throttled
// workspace.updated event. run is the validation summary, nil for deletions.
func (b *Broker) PublishModelEvent(kind, path string, run any) {
	b.enqueue(message{
		event: Event{Type: TypeModelPrefix + kind, Data: ModelEvent{Path: path, Run: run}},
		kind:  kind,
		path:  path,
	})
}

// filterFromQuery reads ?prefix=dir/ and ?kind=failed (repeatable or
// comma separated).
func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{Prefix: q.Get("prefix")}
	for _, v := range q["kind"] {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				f.Kinds = append(f.Kinds, k)
			}
		}
	}
	return f
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A comment line
// is written every heartbeat interval to keep idle proxies from closing
// the stream.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(filterFromQuery(r))
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

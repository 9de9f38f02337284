// Package sse implements a Server-Sent Events broker for zettel change
// notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	TypeCreated     = "zettel.created"
	TypeUpdated     = "zettel.updated"
	TypeDeleted     = "zettel.deleted"
	TypeTagsUpdated = "tags.updated"
)

// Client reconnect delay advertised on connect, in milliseconds.
const retryMillis = 3000

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// outgoing is a queued broadcast. withTags asks the loop to follow it with a
// throttled tags.updated event.
type outgoing struct {
	event    Event
	withTags bool
}

// Broker fans events out to connected SSE clients.
//
// A single loop goroutine owns the client set, the event sequence and the
// tags throttle. Public methods talk to it over channels.
type Broker struct {
	tagsMin   time.Duration
	keepalive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	outCh         chan outgoing
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. At most one tags.updated event is sent per
// tagsThrottle interval no matter how many records change.
func NewBroker(tagsThrottle time.Duration) *Broker {
	if tagsThrottle <= 0 {
		tagsThrottle = 2 * time.Second
	}

	b := &Broker{
		tagsMin:       tagsThrottle,
		keepalive:     30 * time.Second,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		outCh:         make(chan outgoing, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// zettelEventType maps a change kind to its event type.
func zettelEventType(kind string) (string, bool) {
	switch kind {
	case "created":
		return TypeCreated, true
	case "updated":
		return TypeUpdated, true
	case "deleted":
		return TypeDeleted, true
	}
	return "", false
}

// frame renders one SSE message.
func frame(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", event.Type, seq, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq      uint64
		lastTags time.Time
	)

	send := func(event Event) {
		raw, err := frame(seq+1, event)
		if err != nil {
			return
		}
		seq++
		for ch := range clients {
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
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case out := <-b.outCh:
			send(out.event)
			if !out.withTags {
				continue
			}
			if now := time.Now(); now.Sub(lastTags) >= b.tagsMin {
				lastTags = now
				send(Event{Type: TypeTagsUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes all client channels. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

func (b *Broker) enqueue(out outgoing) {
	if b.closed.Load() {
		return
	}
	select {
	case b.outCh <- out:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.enqueue(outgoing{event: event})
}

// PublishZettelEvent publishes a record change ("created", "updated" or
// "deleted") followed by a throttled tags.updated event. Other kinds are
// ignored.
func (b *Broker) PublishZettelEvent(kind, id string) {
	typ, ok := zettelEventType(kind)
	if !ok {
		return
	}
	b.enqueue(outgoing{event: Event{Type: typ, Data: map[string]string{"id": id}}, withTags: true})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepalive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
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

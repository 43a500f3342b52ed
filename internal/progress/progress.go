// Package progress implements the Progress Transport (§4.N): an ordered
// event stream keyed to a single request, framed over SSE by the HTTP
// layer, with a heartbeat that keeps intermediary proxies from closing
// the connection during long stages.
package progress

import (
	"sync"
	"time"
)

// EventType is one of the four event kinds the wire format allows.
type EventType string

const (
	EventStage    EventType = "stage"
	EventPartial  EventType = "partial"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// heartbeatInterval is the "at least every 25 seconds" contract from §4.N.
const heartbeatInterval = 20 * time.Second

// Event is one line of the request's progress stream: `{type, ts, data}`.
type Event struct {
	Type EventType `json:"type"`
	TS   time.Time `json:"ts"`
	Data any       `json:"data"`
}

// StageData is the payload of a stage event.
type StageData struct {
	Name   string `json:"name"`
	Pct    int    `json:"pct"`
	Detail string `json:"detail,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Stream emits ordered events for one request and enforces the
// exactly-one-terminal-event contract. It is safe for concurrent use;
// the orchestrator's stage-completion goroutines and the heartbeat
// ticker both write to the same underlying sink.
type Stream struct {
	mu       sync.Mutex
	sink     func(Event)
	terminal bool
	stopHB   chan struct{}
}

// NewStream constructs a Stream that hands every event to sink in
// issue order. sink is called while holding the Stream's lock, so it
// must not block or re-enter the Stream.
func NewStream(sink func(Event)) *Stream {
	return &Stream{sink: sink, stopHB: make(chan struct{})}
}

// StartHeartbeat begins emitting a stage event named "heartbeat" (pct -1)
// every heartbeatInterval until the stream reaches a terminal event or ctxDone
// fires. Callers run this in its own goroutine.
func (s *Stream) StartHeartbeat(ctxDone <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.heartbeat()
		case <-s.stopHB:
			return
		case <-ctxDone:
			return
		}
	}
}

func (s *Stream) heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.sink(Event{Type: EventStage, TS: time.Now(), Data: StageData{Name: "heartbeat", Pct: -1}})
}

// Stage emits a stage progress event. No-op once a terminal event has
// been emitted.
func (s *Stream) Stage(name string, pct int, detail string) {
	s.emit(Event{Type: EventStage, TS: time.Now(), Data: StageData{Name: name, Pct: pct, Detail: detail}})
}

// Partial emits an optional intermediate-data event.
func (s *Stream) Partial(data any) {
	s.emit(Event{Type: EventPartial, TS: time.Now(), Data: data})
}

// Complete emits the terminal success event and closes the stream to
// further writes.
func (s *Stream) Complete(payload any) {
	s.emitTerminal(Event{Type: EventComplete, TS: time.Now(), Data: payload})
}

// Error emits the terminal failure event and closes the stream to
// further writes.
func (s *Stream) Error(kind, message string) {
	s.emitTerminal(Event{Type: EventError, TS: time.Now(), Data: ErrorData{Kind: kind, Message: message}})
}

func (s *Stream) emit(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.sink(evt)
}

func (s *Stream) emitTerminal(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.terminal = true
	s.sink(evt)
	close(s.stopHB)
}

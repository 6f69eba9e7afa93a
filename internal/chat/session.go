package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipquery/clipquery/internal/models"
)

// State tracks where a chat session is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateStreaming
	StateClosing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when a message arrives while a response is still
// streaming. At most one turn is in flight per session.
var ErrBusy = errors.New("a response is already streaming")

const sessionEventBuffer = 64

// Session is one client's conversation about one video. Events flow
// through a buffered channel drained by the transport layer.
type Session struct {
	ID        string
	VideoID   string
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	history      []models.ChatMessage
	senders      int
	eventsClosed bool

	events chan interface{}
	done   chan struct{}
}

func NewSession(videoID string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		VideoID:   videoID,
		CreatedAt: time.Now(),
		state:     StateConnecting,
		events:    make(chan interface{}, sessionEventBuffer),
		done:      make(chan struct{}),
	}
}

// Events is drained by the transport; it is closed when the session
// fully closes.
func (s *Session) Events() <-chan interface{} {
	return s.events
}

// Done is closed on teardown so producers can stop emitting.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect moves the session from Connecting to Idle once the transport
// handshake finishes.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return fmt.Errorf("cannot connect from state %s", s.state)
	}
	s.state = StateIdle
	return nil
}

// BeginTurn claims the single streaming slot. It fails with ErrBusy if
// a turn is already in flight and with a state error outside Idle.
func (s *Session) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateStreaming:
		return ErrBusy
	case StateIdle:
		s.state = StateStreaming
		return nil
	default:
		return fmt.Errorf("cannot start a turn from state %s", s.state)
	}
}

// EndTurn releases the streaming slot. A session already tearing down
// stays where it is.
func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStreaming {
		s.state = StateIdle
	}
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() {
	s.teardown(StateClosed)
}

// Fail marks the session permanently errored, used when the transport
// is lost abnormally or reconnection attempts are exhausted.
func (s *Session) Fail() {
	s.teardown(StateErrored)
}

func (s *Session) teardown(final State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateErrored {
		return
	}
	s.state = StateClosing
	close(s.done)
	// Blocked emitters are woken by done; the last one out closes the
	// events channel so the transport's drain loop terminates.
	if s.senders == 0 {
		close(s.events)
		s.eventsClosed = true
	}
	s.state = final
}

// AppendMessage records one turn of the conversation.
func (s *Session) AppendMessage(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// History returns a copy of the conversation so far.
func (s *Session) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Emit queues an event for the transport. A full buffer blocks the
// producer until the transport drains or the session tears down, so
// every event up to teardown reaches the client in order. Events sent
// after teardown are dropped.
func (s *Session) Emit(event interface{}) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateErrored || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	s.senders++
	events, done := s.events, s.done
	s.mu.Unlock()

	select {
	case events <- event:
	case <-done:
	}

	s.mu.Lock()
	s.senders--
	if s.senders == 0 && (s.state == StateClosed || s.state == StateErrored) && !s.eventsClosed {
		close(s.events)
		s.eventsClosed = true
	}
	s.mu.Unlock()
}

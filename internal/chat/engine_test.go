package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clipquery/clipquery/internal/models"
)

type fakeRetriever struct {
	results []models.SearchResult
	err     error
	query   string
}

func (f *fakeRetriever) Search(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error) {
	f.query = query
	return f.results, f.err
}

type fakeGenerator struct {
	deltas    []string
	err       error
	sysPrompt string
}

func (f *fakeGenerator) Stream(ctx context.Context, systemPrompt, userMessage string, onDelta func(string) error) (string, error) {
	f.sysPrompt = systemPrompt
	var full strings.Builder
	for _, d := range f.deltas {
		full.WriteString(d)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return full.String(), err
			}
		}
	}
	if f.err != nil {
		return full.String(), f.err
	}
	return full.String(), nil
}

func drainEvents(t *testing.T, s *Session) []interface{} {
	t.Helper()
	var events []interface{}
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func openTestSession(t *testing.T, e *Engine) *Session {
	t.Helper()
	s, err := e.OpenSession("vid-1")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	return s
}

func TestEngine_HandleMessage(t *testing.T) {
	retriever := &fakeRetriever{results: []models.SearchResult{
		{Text: "neural networks", StartTime: 5, EndTime: 9, Confidence: 0.92},
	}}
	generator := &fakeGenerator{deltas: []string{"See ", "[5.0s] ", "for that."}}
	e := NewEngine(retriever, generator)
	s := openTestSession(t, e)

	e.HandleMessage(context.Background(), s, "where are neural networks?")

	events := drainEvents(t, s)
	if len(events) != 4 {
		t.Fatalf("Expected 3 chunks + complete, got %d events: %+v", len(events), events)
	}

	for i, want := range []string{"See ", "[5.0s] ", "for that."} {
		chunk, ok := events[i].(ChunkEvent)
		if !ok {
			t.Fatalf("Event %d is not a chunk: %+v", i, events[i])
		}
		if chunk.Content != want {
			t.Errorf("Chunk %d: expected %q, got %q", i, want, chunk.Content)
		}
	}

	complete, ok := events[3].(CompleteEvent)
	if !ok {
		t.Fatalf("Last event is not complete: %+v", events[3])
	}
	if complete.FullResponse != "See [5.0s] for that." {
		t.Errorf("Unexpected full response: %q", complete.FullResponse)
	}
	if !complete.VideoContextUsed || complete.SegmentsFound != 1 {
		t.Errorf("Unexpected context flags: %+v", complete)
	}
	if len(complete.SearchSegments) != 1 {
		t.Errorf("Expected search segments echoed, got %+v", complete.SearchSegments)
	}

	if !strings.Contains(generator.sysPrompt, "[5.0s] neural networks") {
		t.Errorf("System prompt missing timestamped excerpt:\n%s", generator.sysPrompt)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected session idle after turn, got %s", s.State())
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	if !history[0].IsFromUser || history[0].Segments != nil {
		t.Errorf("Unexpected user message: %+v", history[0])
	}
	if history[1].IsFromUser || len(history[1].Segments) != 1 {
		t.Errorf("Unexpected assistant message: %+v", history[1])
	}
	if history[1].Text != "See [5.0s] for that." {
		t.Errorf("Unexpected assistant text: %q", history[1].Text)
	}
}

func TestEngine_SlowConsumerGetsFullStream(t *testing.T) {
	// A generator producing faster than the transport drains must not
	// lose chunks or the terminal event.
	const chunks = sessionEventBuffer + 36
	deltas := make([]string, chunks)
	for i := range deltas {
		deltas[i] = fmt.Sprintf("w%d ", i)
	}
	e := NewEngine(&fakeRetriever{}, &fakeGenerator{deltas: deltas})
	s := openTestSession(t, e)

	turnDone := make(chan struct{})
	go func() {
		defer close(turnDone)
		e.HandleMessage(context.Background(), s, "tell me everything")
	}()

	var assembled strings.Builder
	received := 0
	var complete *CompleteEvent
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev := <-s.Events():
			switch e := ev.(type) {
			case ChunkEvent:
				assembled.WriteString(e.Content)
				received++
			case CompleteEvent:
				complete = &e
				break loop
			}
			time.Sleep(20 * time.Microsecond)
		case <-deadline:
			t.Fatalf("Timed out after %d chunks", received)
		}
	}
	<-turnDone

	if received != chunks {
		t.Errorf("Expected %d chunks, got %d", chunks, received)
	}
	if complete == nil {
		t.Fatal("Expected a terminal complete event")
	}
	if assembled.String() != strings.Join(deltas, "") {
		t.Errorf("Assembled text does not match generator output: %d bytes vs %d",
			assembled.Len(), len(strings.Join(deltas, "")))
	}
	if complete.FullResponse != assembled.String() {
		t.Errorf("Complete event text differs from streamed chunks")
	}
}

func TestEngine_EmptyMessageIgnored(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, &fakeGenerator{deltas: []string{"hi"}})
	s := openTestSession(t, e)

	e.HandleMessage(context.Background(), s, "   ")

	if events := drainEvents(t, s); len(events) != 0 {
		t.Errorf("Expected no events for empty message, got %+v", events)
	}
}

func TestEngine_BusySession(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, &fakeGenerator{})
	s := openTestSession(t, e)

	if err := s.BeginTurn(); err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}

	e.HandleMessage(context.Background(), s, "second message")

	events := drainEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 error event, got %d", len(events))
	}
	errEv, ok := events[0].(ErrorEvent)
	if !ok || errEv.Type != "error" {
		t.Fatalf("Expected error event, got %+v", events[0])
	}
	if s.State() != StateStreaming {
		t.Errorf("Busy rejection must leave the in-flight turn streaming, got %s", s.State())
	}
}

func TestEngine_GeneratorFailureBeforeOutput(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, &fakeGenerator{err: errors.New("api down")})
	s := openTestSession(t, e)

	e.HandleMessage(context.Background(), s, "question")

	events := drainEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	errEv, ok := events[0].(ErrorEvent)
	if !ok {
		t.Fatalf("Expected error event, got %+v", events[0])
	}
	if errEv.Message != "AI service temporarily unavailable" {
		t.Errorf("Unexpected message: %q", errEv.Message)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected session usable after failure, got %s", s.State())
	}
}

func TestEngine_GeneratorFailureMidStream(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"partial "}, err: errors.New("conn reset")}
	e := NewEngine(&fakeRetriever{}, gen)
	s := openTestSession(t, e)

	e.HandleMessage(context.Background(), s, "question")

	events := drainEvents(t, s)
	if len(events) != 2 {
		t.Fatalf("Expected chunk + error, got %d events", len(events))
	}
	errEv, ok := events[1].(ErrorEvent)
	if !ok {
		t.Fatalf("Expected error event last, got %+v", events[1])
	}
	if errEv.Message != "Response streaming interrupted" {
		t.Errorf("Unexpected message: %q", errEv.Message)
	}
}

func TestEngine_NoGenerator(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, nil)
	s := openTestSession(t, e)

	e.HandleMessage(context.Background(), s, "question")

	events := drainEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 error event, got %d", len(events))
	}
	if _, ok := events[0].(ErrorEvent); !ok {
		t.Errorf("Expected error event, got %+v", events[0])
	}
}

func TestEngine_RetrievalFailureStillAnswers(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("search down")}
	gen := &fakeGenerator{deltas: []string{"no context answer"}}
	e := NewEngine(retriever, gen)
	s := openTestSession(t, e)

	e.HandleMessage(context.Background(), s, "question")

	events := drainEvents(t, s)
	complete, ok := events[len(events)-1].(CompleteEvent)
	if !ok {
		t.Fatalf("Expected complete event, got %+v", events[len(events)-1])
	}
	if complete.VideoContextUsed || complete.SegmentsFound != 0 {
		t.Errorf("Expected no context flags set: %+v", complete)
	}
	if complete.SearchSegments == nil {
		t.Error("Expected empty, non-nil search segments for JSON encoding")
	}
}

func TestEngine_SessionRegistry(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, &fakeGenerator{})
	s := openTestSession(t, e)

	if got, ok := e.GetSession(s.ID); !ok || got != s {
		t.Error("Expected session retrievable by id")
	}
	if e.SessionCount() != 1 {
		t.Errorf("Expected 1 session, got %d", e.SessionCount())
	}

	e.CloseSession(s.ID)
	if _, ok := e.GetSession(s.ID); ok {
		t.Error("Expected session removed after close")
	}
	if s.State() != StateClosed {
		t.Errorf("Expected closed, got %s", s.State())
	}
}

func TestEngine_FailSession(t *testing.T) {
	e := NewEngine(&fakeRetriever{}, &fakeGenerator{})
	s := openTestSession(t, e)

	e.FailSession(s.ID)
	if _, ok := e.GetSession(s.ID); ok {
		t.Error("Expected session removed after failure")
	}
	if s.State() != StateErrored {
		t.Errorf("Expected errored, got %s", s.State())
	}
}

package chat

import (
	"fmt"
	"testing"
	"time"
)

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession("vid-1")

	if s.State() != StateConnecting {
		t.Errorf("Expected new session connecting, got %s", s.State())
	}
	if err := s.BeginTurn(); err == nil {
		t.Error("Expected error beginning turn before connect")
	}

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle after connect, got %s", s.State())
	}
	if err := s.Connect(); err == nil {
		t.Error("Expected error on double connect")
	}

	if err := s.BeginTurn(); err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	if s.State() != StateStreaming {
		t.Errorf("Expected streaming, got %s", s.State())
	}

	s.EndTurn()
	if s.State() != StateIdle {
		t.Errorf("Expected idle after turn, got %s", s.State())
	}

	s.Close()
	if s.State() != StateClosed {
		t.Errorf("Expected closed, got %s", s.State())
	}
	if err := s.BeginTurn(); err == nil {
		t.Error("Expected error beginning turn on closed session")
	}
}

func TestSession_OneTurnInFlight(t *testing.T) {
	s := NewSession("vid-1")
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := s.BeginTurn(); err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	if err := s.BeginTurn(); err != ErrBusy {
		t.Errorf("Expected ErrBusy for second turn, got %v", err)
	}
	if s.State() != StateStreaming {
		t.Errorf("Rejected turn must not change state, got %s", s.State())
	}

	s.EndTurn()
	if err := s.BeginTurn(); err != nil {
		t.Errorf("Expected turn allowed after EndTurn, got %v", err)
	}
}

func TestSession_EmitAfterCloseIsDropped(t *testing.T) {
	s := NewSession("vid-1")
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	s.Emit(newChunk("hello"))
	s.Close()
	s.Emit(newChunk("late")) // must not panic on closed channel

	var received []interface{}
	for ev := range s.Events() {
		received = append(received, ev)
	}
	if len(received) != 1 {
		t.Errorf("Expected 1 event before close, got %d", len(received))
	}
}

func TestSession_SlowConsumerReceivesEveryEvent(t *testing.T) {
	s := NewSession("vid-1")
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Far more events than the buffer holds.
	const chunks = sessionEventBuffer * 3

	go func() {
		for i := 0; i < chunks; i++ {
			s.Emit(newChunk(fmt.Sprintf("c%d", i)))
		}
		s.Emit(newComplete("done", nil))
		s.Close()
	}()

	received := 0
	sawComplete := false
	for ev := range s.Events() {
		switch e := ev.(type) {
		case ChunkEvent:
			if want := fmt.Sprintf("c%d", received); e.Content != want {
				t.Fatalf("Chunk %d out of order: got %q, want %q", received, e.Content, want)
			}
			received++
		case CompleteEvent:
			sawComplete = true
		}
		// Drain slower than the producer emits.
		time.Sleep(50 * time.Microsecond)
	}

	if received != chunks {
		t.Errorf("Expected all %d chunks delivered, got %d", chunks, received)
	}
	if !sawComplete {
		t.Error("Expected the terminal complete event to be delivered")
	}
}

func TestSession_EmitUnblocksOnTeardown(t *testing.T) {
	s := NewSession("vid-1")
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	emitterDone := make(chan struct{})
	go func() {
		defer close(emitterDone)
		// Nobody drains: the buffer fills and Emit blocks until close.
		for i := 0; i < sessionEventBuffer*2; i++ {
			s.Emit(newChunk("x"))
		}
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case <-emitterDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit still blocked after session close")
	}

	// The drain loop must still terminate after the last emitter left.
	count := 0
	for range s.Events() {
		count++
	}
	if count != sessionEventBuffer {
		t.Errorf("Expected the %d buffered events, got %d", sessionEventBuffer, count)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := NewSession("vid-1")
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	s.Close()
	s.Close()
	s.Fail() // already closed, must be a no-op
	if s.State() != StateClosed {
		t.Errorf("Expected closed, got %s", s.State())
	}
}

func TestSession_Fail(t *testing.T) {
	s := NewSession("vid-1")
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	s.Fail()
	if s.State() != StateErrored {
		t.Errorf("Expected errored, got %s", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Expected done channel closed after Fail")
	}
}

package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/clipquery/clipquery/internal/models"
)

const chatTopK = 5

const systemPromptTemplate = `You are a helpful assistant answering questions about a video using its transcript.

Relevant transcript excerpts, each prefixed with its start time in seconds:
%s

Guidelines:
- Answer using only the transcript excerpts above.
- When you reference a specific moment, cite its timestamp in the form [12.3s] so the viewer can jump there.
- Keep answers concise, two or three sentences.
- If the excerpts do not cover the question, say the video does not seem to discuss it.`

const noContextSystemPrompt = `You are a helpful assistant answering questions about a video.

No transcript excerpts matched this question. Tell the viewer you could not find relevant moments in the video and suggest rephrasing the question.`

// Retriever finds transcript passages relevant to a chat message.
type Retriever interface {
	Search(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error)
}

// Generator streams a model response for a prompt pair.
type Generator interface {
	Stream(ctx context.Context, systemPrompt, userMessage string, onDelta func(string) error) (string, error)
}

// Engine owns all live chat sessions and runs the
// retrieve-then-generate turn for each incoming message.
type Engine struct {
	retriever Retriever
	generator Generator

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewEngine(retriever Retriever, generator Generator) *Engine {
	return &Engine{
		retriever: retriever,
		generator: generator,
		sessions:  make(map[string]*Session),
	}
}

// OpenSession registers a new session for a video and marks it live.
func (e *Engine) OpenSession(videoID string) (*Session, error) {
	session := NewSession(videoID)
	if err := session.Connect(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	log.Printf("[CHAT] session %s opened for video %s", session.ID, videoID)
	return session, nil
}

// CloseSession tears a session down and removes it from the registry.
func (e *Engine) CloseSession(sessionID string) {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	delete(e.sessions, sessionID)
	e.mu.Unlock()

	if ok {
		session.Close()
		log.Printf("[CHAT] session %s closed", sessionID)
	}
}

// FailSession marks a session errored and removes it.
func (e *Engine) FailSession(sessionID string) {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	delete(e.sessions, sessionID)
	e.mu.Unlock()

	if ok {
		session.Fail()
		log.Printf("[CHAT] session %s errored", sessionID)
	}
}

// GetSession returns a live session by id.
func (e *Engine) GetSession(sessionID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	session, ok := e.sessions[sessionID]
	return session, ok
}

// SessionCount reports how many sessions are currently registered.
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// HandleMessage runs one full chat turn: retrieval, streamed
// generation, and the terminal complete or error event. Empty messages
// are ignored; a message arriving mid-stream gets an error event while
// the in-flight turn continues undisturbed.
func (e *Engine) HandleMessage(ctx context.Context, session *Session, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	if err := session.BeginTurn(); err != nil {
		if err == ErrBusy {
			session.Emit(newError("Please wait for the current response to finish"))
		}
		return
	}
	defer session.EndTurn()

	session.AppendMessage(models.ChatMessage{
		ID:         uuid.New().String(),
		Text:       message,
		IsFromUser: true,
	})

	if e.generator == nil {
		session.Emit(newError("AI service temporarily unavailable"))
		return
	}

	segments := e.retrieve(ctx, session.VideoID, message)
	systemPrompt := buildSystemPrompt(segments)

	var full strings.Builder
	_, err := e.generator.Stream(ctx, systemPrompt, message, func(delta string) error {
		full.WriteString(delta)
		session.Emit(newChunk(delta))
		select {
		case <-session.Done():
			return fmt.Errorf("session closed")
		default:
			return nil
		}
	})
	if err != nil {
		log.Printf("[CHAT] session %s stream failed: %v", session.ID, err)
		if full.Len() > 0 {
			session.Emit(newError("Response streaming interrupted"))
		} else {
			session.Emit(newError("AI service temporarily unavailable"))
		}
		return
	}

	session.AppendMessage(models.ChatMessage{
		ID:         uuid.New().String(),
		Text:       full.String(),
		IsFromUser: false,
		Segments:   segments,
	})
	session.Emit(newComplete(full.String(), segments))
}

func (e *Engine) retrieve(ctx context.Context, videoID, message string) []models.SearchResult {
	if e.retriever == nil {
		return nil
	}
	segments, err := e.retriever.Search(ctx, videoID, message, chatTopK)
	if err != nil {
		log.Printf("[CHAT] retrieval failed for video %s: %v", videoID, err)
		return nil
	}
	return segments
}

func buildSystemPrompt(segments []models.SearchResult) string {
	if len(segments) == 0 {
		return noContextSystemPrompt
	}

	var context strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&context, "[%.1fs] %s\n", s.StartTime, s.Text)
	}
	return fmt.Sprintf(systemPromptTemplate, strings.TrimRight(context.String(), "\n"))
}

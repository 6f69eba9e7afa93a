package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/clipquery/clipquery/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API is served same-origin in production; the dev frontend
	// runs on a different port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Message string `json:"message"`
}

// ChatHandler upgrades the connection and runs one chat session over
// it: a writer goroutine drains session events while the read loop
// feeds user messages to the engine.
func (app *App) ChatHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if videoID == "" {
		respondError(w, http.StatusBadRequest, "video id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := app.Engine.OpenSession(videoID)
	if err != nil {
		log.Printf("[WS] failed to open session: %v", err)
		return
	}
	defer app.Engine.CloseSession(session.ID)

	// Cancels in-flight generation when the connection goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for event := range session.Events() {
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("[WS] session %s write failed: %v", session.ID, err)
				cancel()
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WS] session %s closed by client", session.ID)
				app.Engine.CloseSession(session.ID)
			} else {
				log.Printf("[WS] session %s connection dropped: %v", session.ID, err)
				app.Engine.FailSession(session.ID)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			session.Emit(chat.ErrorEvent{Type: "error", Message: "invalid message format"})
			continue
		}

		go app.Engine.HandleMessage(ctx, session, msg.Message)
	}

	cancel()
	<-writerDone
}

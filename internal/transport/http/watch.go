package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cybersafe-assessment-service/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type watchEvent struct {
	Type             string               `json:"type"` // tick | status | error
	Status           domain.SessionStatus `json:"status,omitempty"`
	RemainingSeconds *int                 `json:"remainingSeconds,omitempty"`
	Message          string               `json:"message,omitempty"`
}

// handleWatch streams countdown ticks and status changes for one session.
// The server clock is authoritative here; the browser countdown is only a
// rendering of these events.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	sessionID := r.PathValue("sessionId")
	if _, _, err := h.service.Session(r.Context(), userID, sessionID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("watch upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine only detects the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastStatus := domain.SessionStatus("")
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		session, _, err := h.service.Session(r.Context(), userID, sessionID)
		if err != nil {
			_ = conn.WriteJSON(watchEvent{Type: "error", Message: err.Error()})
			return
		}

		event := watchEvent{Type: "tick", Status: session.Status}
		if !session.Deadline.IsZero() {
			remaining := int(time.Until(session.Deadline).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			event.RemainingSeconds = &remaining
		}
		if session.Status != lastStatus {
			event.Type = "status"
			lastStatus = session.Status
		}
		if err := conn.WriteJSON(event); err != nil {
			return
		}
		if session.Status == domain.StatusGraded || session.Status == domain.StatusExpired {
			return
		}
	}
}

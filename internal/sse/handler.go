package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// writeTimeout bounds each frame write so a stuck client cannot pin a goroutine.
// The manager's heartbeat keeps idle streams well inside it.
const writeTimeout = 2 * DefaultHeartbeatInterval

// Handler streams events at GET /api/v1/events.
//
// The optional session_id query parameter limits the stream to one session.
// A reconnecting browser sends Last-Event-ID and receives the events it missed
// while they are still in the manager's history.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	lastEventID, err := parseLastEventID(r)
	if err != nil {
		http.Error(w, "Invalid Last-Event-ID", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("streaming not supported", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	client, err := h.manager.Connect(sessionID, lastEventID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))

	hello := map[string]any{
		"client_id":     client.ID,
		"session_id":    sessionID,
		"last_event_id": h.manager.LastEventID(),
	}
	if err := h.writeFrame(rc, w, 0, "connected", hello); err != nil {
		log.Debug("client gone before handshake", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := h.writeFrame(rc, w, event.ID, string(event.Type), event); err != nil {
				log.Debug("client disconnected during send", slog.String("error", err.Error()))
				return
			}

		case <-client.Done:
			log.Debug("client closed by manager")
			return

		case <-ctx.Done():
			return
		}
	}
}

// parseLastEventID reads the Last-Event-ID header, falling back to the
// last_event_id query parameter for clients that cannot set headers.
func parseLastEventID(r *http.Request) (uint64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// writeFrame writes one SSE frame and flushes it. A zero id omits the id field.
func (h *Handler) writeFrame(rc *http.ResponseController, w http.ResponseWriter, id uint64, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		// Not every ResponseWriter supports deadlines (httptest recorders).
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}

	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	return rc.Flush()
}

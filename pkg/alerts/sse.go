package alerts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 30 * time.Second

// StreamHandler serves a server-sent-events stream of a streamer's donation
// alerts. The connection stays open until the client disconnects, so the route
// it is mounted on must not sit behind a request timeout middleware.
type StreamHandler struct {
	hub       *Hub
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler creates a stream handler. heartbeat intervals below one
// second fall back to the default.
func NewStreamHandler(hub *Hub, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat < time.Second {
		heartbeat = defaultHeartbeatInterval
	}
	return &StreamHandler{hub: hub, heartbeat: heartbeat, logger: logger}
}

// Serve streams alerts for the given streamer to one client.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request, streamerID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cancel := h.hub.Subscribe(streamerID)
	defer cancel()

	// The overlay uses the connected event to know the stream is live
	// before any donation arrives.
	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("Alert stream opened", zap.String("streamer_id", streamerID))

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Alert stream closed", zap.String("streamer_id", streamerID))
			return
		case <-ticker.C:
			// Comment lines keep intermediaries from closing an idle stream.
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to encode alert event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: donation\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/brojonat/bukeqi/service/oracle"
)

const (
	sseKeepaliveInterval = 10 * time.Second
	sseSubscriberBuffer  = 4
)

// handleStreamOracle streams oracle snapshots as Server-Sent Events.
// The first snapshot is sent right after the connected event; later ones
// follow every state, display, ledger or identity change.
// GET /api/v1/oracle/stream
func handleStreamOracle(o Oracle, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		// Streams outlive the server's write timeout.
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			logger.DebugContext(r.Context(), "could not clear write deadline", "error", err)
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		// The subscription starts with the current snapshot.
		updates, cancel := o.Subscribe(sseSubscriberBuffer)
		defer cancel()

		logger.DebugContext(r.Context(), "SSE client connected", "remote_addr", r.RemoteAddr)

		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		flusher.Flush()

		send := func(snap oracle.Snapshot) bool {
			data, err := json.Marshal(snap)
			if err != nil {
				logger.WarnContext(r.Context(), "failed to marshal snapshot", "error", err)
				return true
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return false
			}
			flusher.Flush()
			if m != nil {
				m.RecordSSEEventSent("snapshot")
			}
			return true
		}

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				// Send keepalive comment to prevent timeout
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case snap, ok := <-updates:
				if !ok {
					// Oracle closed
					return
				}
				if !send(snap) {
					return
				}

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}

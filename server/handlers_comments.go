package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

const sseHeartbeatInterval = 15 * time.Second

// HandleCommentsSSE streams comment events as server-sent events. Each event
// is one "data:" line of JSON; idle connections get comment heartbeats so
// proxies do not cut the stream.
func (h *Handlers) HandleCommentsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := h.deps.Bus.Subscribe(events.TopicComment)
	defer unsub()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-ch:
			ev, ok := msg.(comment.Event)
			if !ok {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gyururu/cohost/overlay"
	"github.com/gyururu/cohost/telemetry"
)

// HandleOverlayMessage pushes a message onto the overlay board. The role
// defaults to streamer so the host can drop a line on the overlay without a
// comment source; ai and viewer are accepted for tooling that replays
// captured sessions.
func (h *Handlers) HandleOverlayMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Role       string `json:"role"`
		Name       string `json:"name"`
		Body       string `json:"body"`
		EffectType string `json:"effect_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Body == "" {
		http.Error(w, "invalid json: body required", http.StatusBadRequest)
		return
	}
	if body.Role == "" {
		body.Role = overlay.RoleStreamer
	}
	switch body.Role {
	case overlay.RoleStreamer, overlay.RoleAI, overlay.RoleViewer:
	default:
		http.Error(w, fmt.Sprintf("unknown role %q", body.Role), http.StatusBadRequest)
		return
	}

	h.deps.Board.Push(body.Role, body.Name, body.Body, body.EffectType)
	telemetry.LoggerWithCorr(r.Context()).Info("overlay message pushed",
		slog.String("role", body.Role), slog.String("name", body.Name), slog.String("component", "overlay"))
	w.WriteHeader(http.StatusNoContent)
}

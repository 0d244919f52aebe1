package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gyururu/cohost/bridge"
	"github.com/gyururu/cohost/db"
	"github.com/gyururu/cohost/telemetry"
)

// HandleConnectorsList returns every registered comment source with its
// connection state.
func (h *Handlers) HandleConnectorsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"services": h.deps.Manager.States(),
	})
}

// HandleConnectorsDispatcher routes /connectors/{name}/{action} where action
// is connect, disconnect or autostart.
func (h *Handlers) HandleConnectorsDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/connectors/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	name, action := parts[0], parts[1]
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log := telemetry.LoggerWithCorr(r.Context())

	switch action {
	case "connect":
		var body struct {
			URL string `json:"url"`
		}
		if r.Body != nil {
			// A missing or empty body means connect with the registered URL.
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		if err := h.deps.Manager.Connect(r.Context(), name, body.URL); err != nil {
			log.Warn("connector connect failed", slog.String("service", name), slog.Any("err", err))
			writeConnectorError(w, err)
			return
		}
		log.Info("connector connected", slog.String("service", name), slog.String("component", "bridge"))
		w.WriteHeader(http.StatusNoContent)
	case "disconnect":
		if err := h.deps.Manager.Disconnect(name); err != nil {
			writeConnectorError(w, err)
			return
		}
		log.Info("connector disconnected", slog.String("service", name), slog.String("component", "bridge"))
		w.WriteHeader(http.StatusNoContent)
	case "autostart":
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := h.deps.Manager.SetAutoStart(name, body.Enabled); err != nil {
			writeConnectorError(w, err)
			return
		}
		val := "0"
		if body.Enabled {
			val = "1"
		}
		if err := db.SetKV(r.Context(), h.deps.DB, "auto_start_"+name, val); err != nil {
			log.Error("failed to persist autostart flag", slog.String("service", name), slog.Any("err", err))
			http.Error(w, "failed to persist autostart flag", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func writeConnectorError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bridge.ErrUnknownService):
		status = http.StatusNotFound
	case errors.Is(err, bridge.ErrServiceDisabled):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

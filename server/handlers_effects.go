package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gyururu/cohost/effects"
	"github.com/gyururu/cohost/telemetry"
)

// HandleEffectPresets returns every effect preset in display order.
func (h *Handlers) HandleEffectPresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"presets": h.deps.Presets.All(),
	})
}

// HandleEffectTrigger fires a preset manually. Manual triggers bypass the
// per-preset cooldown but still respect the concurrency cap.
func (h *Handlers) HandleEffectTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ID     string `json:"id"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		http.Error(w, "invalid json: id required", http.StatusBadRequest)
		return
	}
	if body.Source == "" {
		body.Source = "api"
	}

	if err := h.deps.Engine.Trigger(body.ID, effects.TriggerManual, body.Source); err != nil {
		if errors.Is(err, effects.ErrUnknownPreset) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("effect triggered",
		slog.String("preset", body.ID), slog.String("source", body.Source), slog.String("component", "effects"))
	w.WriteHeader(http.StatusAccepted)
}

// HandleOBSScene switches the current OBS program scene.
func (h *Handlers) HandleOBSScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Scene string `json:"scene"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Scene == "" {
		http.Error(w, "invalid json: scene required", http.StatusBadRequest)
		return
	}
	if h.deps.OBS == nil || !h.deps.OBS.Connected() {
		http.Error(w, "obs not connected", http.StatusServiceUnavailable)
		return
	}
	if err := h.deps.OBS.SetCurrentProgramScene(body.Scene); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("obs scene change failed", slog.String("scene", body.Scene), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOBSHotkey triggers a named OBS hotkey.
func (h *Handlers) HandleOBSHotkey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "invalid json: name required", http.StatusBadRequest)
		return
	}
	if h.deps.OBS == nil || !h.deps.OBS.Connected() {
		http.Error(w, "obs not connected", http.StatusServiceUnavailable)
		return
	}
	if err := h.deps.OBS.TriggerHotkeyByName(body.Name); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("obs hotkey failed", slog.String("hotkey", body.Name), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

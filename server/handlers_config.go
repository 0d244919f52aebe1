package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gyururu/cohost/db"
	"github.com/gyururu/cohost/events"
)

// HandleConfig handles GET and PUT requests for safe configuration keys.
// Secrets (API keys, tokens, the OBS password) are never exposed here.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	safeKeys := map[string]bool{
		"LOG_LEVEL":                 true,
		"LOG_FORMAT":                true,
		"DATA_DIR":                  true,
		"OVERLAY_SNAPSHOT_INTERVAL": true,
		"AI_REPLY_PROBABILITY":      true,
		"AI_REPLY_COOLDOWN":         true,
		"EFFECT_DENSITY":            true,
		"BOUYOMI_HOST":              true,
		"BOUYOMI_TCP_PORT":          true,
		"BOUYOMI_HTTP_PORT":         true,
		"ONECOMME_LEGACY_URL":       true,
		"ONECOMME_NEW_URL":          true,
		"MULTIVIEWER_URL":           true,
		"TCP_COMMENT_ADDR":          true,
	}
	switch r.Method {
	case http.MethodGet:
		// Safe keys with kv overrides taking precedence over env.
		out := map[string]string{}
		for k := range safeKeys {
			v, err := db.GetKV(r.Context(), h.deps.DB, "cfg:"+k)
			if err != nil {
				slog.Warn("failed to read config key", slog.String("key", k), slog.Any("err", err))
			}
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if err := db.SetKV(r.Context(), h.deps.DB, "cfg:"+k, strings.TrimSpace(v)); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStatus returns a lightweight runtime summary: connector states,
// effect stats, TTS state and bus drop counts.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.deps.Manager != nil {
		resp["connectors"] = h.deps.Manager.States()
		resp["connected_sources"] = h.deps.Manager.ConnectedCount()
	}
	if h.deps.Engine != nil {
		resp["effects"] = map[string]any{
			"stats":   h.deps.Engine.Stats(),
			"active":  h.deps.Engine.Active(),
			"waiting": h.deps.Engine.Waiting(),
		}
	}
	if h.deps.TTS != nil {
		ttsStatus := map[string]any{"bouyomi": h.deps.TTS.Status()}
		if h.deps.Runner != nil {
			ttsStatus["queue_depth"] = h.deps.Runner.QueueLen()
		}
		resp["tts"] = ttsStatus
	}
	if h.deps.OBS != nil {
		resp["obs_connected"] = h.deps.OBS.Connected()
	}
	if h.deps.Bus != nil {
		resp["bus_drops"] = map[string]uint64{
			"comments": h.deps.Bus.DropCount(events.TopicComment),
			"effects":  h.deps.Bus.DropCount(events.TopicEffectTrigger),
			"tts":      h.deps.Bus.DropCount(events.TopicTTSRequest),
		}
	}
	resp["overlay_clients"] = h.hub.Count()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

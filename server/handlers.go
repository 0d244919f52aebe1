// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/gyururu/cohost/bridge"
	"github.com/gyururu/cohost/effects"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/obs"
	"github.com/gyururu/cohost/overlay"
	"github.com/gyururu/cohost/tts"
)

// Deps are the application components the API surfaces. OBS may be nil when
// no OBS control is configured.
type Deps struct {
	DB      *sql.DB
	Bus     *events.Bus
	Manager *bridge.Manager
	Engine  *effects.Engine
	Presets *effects.Set
	Board   *overlay.Board
	Writer  *overlay.Writer
	TTS     *tts.Client
	Runner  *tts.Runner
	OBS     *obs.Client
	DataDir string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx     context.Context
	deps    Deps
	hub     *overlayHub
	started time.Time
}

// NewHandlers creates a new Handlers instance and wires the overlay snapshot
// broadcast into the WebSocket hub.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	h := &Handlers{
		ctx:     ctx,
		deps:    deps,
		hub:     newOverlayHub(),
		started: time.Now(),
	}
	if deps.Writer != nil {
		deps.Writer.SetBroadcast(h.hub.Broadcast)
	}
	return h
}

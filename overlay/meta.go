package overlay

import (
	"encoding/json"
	"fmt"
)

// Meta is the display configuration block of the snapshot document. The
// overlay page reads it on every poll, so changed values take effect
// without reloading the browser source.
type Meta struct {
	Mode    string  `json:"mode"`
	Canvas  Canvas  `json:"canvas"`
	Display Display `json:"display"`
	TTL     TTLMap  `json:"ttl"`
	Role    Roles   `json:"role"`
}

type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Display struct {
	Flow     Flow     `json:"flow"`
	MaxItems MaxItems `json:"max_items"`
	Area     Area     `json:"area"`
	Show     Show     `json:"show"`
}

type Flow struct {
	Direction string  `json:"direction"`
	Speed     float64 `json:"speed"`
}

type MaxItems struct {
	Streamer int `json:"streamer"`
	AI       int `json:"ai"`
	Timeline int `json:"timeline"`
}

type Area struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Show struct {
	Streamer bool `json:"streamer"`
	AI       bool `json:"ai"`
	Viewer   bool `json:"viewer"`
}

type TTL struct {
	Enabled bool `json:"enabled"`
	Seconds int  `json:"seconds"`
}

type TTLMap struct {
	Streamer TTL `json:"streamer"`
	AI       TTL `json:"ai"`
	Viewer   TTL `json:"viewer"`
}

type RoleStyle struct {
	Color string `json:"color"`
}

type Roles struct {
	Streamer RoleStyle `json:"streamer"`
	AI       RoleStyle `json:"ai"`
	Viewer   RoleStyle `json:"viewer"`
}

// DefaultMeta returns the stock overlay configuration: a 1920x1080 canvas,
// messages flowing downward, and the standard role colors.
func DefaultMeta() Meta {
	return Meta{
		Mode:   "TIMELINE",
		Canvas: Canvas{Width: 1920, Height: 1080},
		Display: Display{
			Flow:     Flow{Direction: "DOWN", Speed: 3.0},
			MaxItems: MaxItems{Streamer: 0, AI: 0, Timeline: 5},
			Area:     Area{X: 50, Y: 0, Width: 400, Height: 600},
			Show:     Show{Streamer: true, AI: true, Viewer: true},
		},
		TTL: TTLMap{
			Streamer: TTL{Enabled: false, Seconds: 10},
			AI:       TTL{Enabled: false, Seconds: 10},
			Viewer:   TTL{Enabled: false, Seconds: 10},
		},
		Role: Roles{
			Streamer: RoleStyle{Color: "#4A90E2"},
			AI:       RoleStyle{Color: "#9B59B6"},
			Viewer:   RoleStyle{Color: "#7F8C8D"},
		},
	}
}

// MetaFromJSON merges a stored JSON override (the overlay_meta configuration
// key) onto the defaults. An empty document returns the defaults unchanged.
func MetaFromJSON(raw string) (Meta, error) {
	m := DefaultMeta()
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return DefaultMeta(), fmt.Errorf("parse overlay meta: %w", err)
	}
	return m, nil
}

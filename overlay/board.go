// Package overlay builds the browser-source document the OBS overlay polls:
// role-separated message boards, display metadata from the configuration
// store, and the periodically written data.json snapshot.
package overlay

import (
	"sort"
	"sync"
	"time"
)

// Message roles shown on the overlay.
const (
	RoleStreamer = "streamer"
	RoleAI       = "ai"
	RoleViewer   = "viewer"
)

// Per-role entry animation defaults.
const (
	defaultViewerEffect = "fadeUp"
	defaultAIEffect     = "pop"
)

// Messages are kept per role up to this many; older entries fall off. The
// desktop original relied on a manual clear button instead.
const maxBoardMessages = 200

// Message is one overlay line. EffectType is the entry animation the
// overlay plays (fadeUp, pop, drop, glow, slide).
type Message struct {
	Role       string  `json:"role"`
	Name       string  `json:"name"`
	Body       string  `json:"body"`
	EffectType string  `json:"effectType"`
	TS         float64 `json:"ts"`
}

// Streams is the snapshot shape of the boards: one list per role plus the
// merged timeline, sorted by timestamp ascending.
type Streams struct {
	Timeline []Message `json:"timeline"`
	Streamer []Message `json:"streamer"`
	AI       []Message `json:"ai"`
	Viewer   []Message `json:"viewer"`
}

// Board accumulates messages per role between snapshots.
type Board struct {
	mu       sync.Mutex
	streamer []Message
	ai       []Message
	viewer   []Message
	now      func() time.Time
}

func NewBoard() *Board {
	return &Board{now: time.Now}
}

// Push appends a message under role. Unknown roles land on the viewer
// board; an empty effectType gets the fadeUp default.
func (b *Board) Push(role, name, body, effectType string) {
	if effectType == "" {
		effectType = defaultViewerEffect
	}
	msg := Message{
		Role:       role,
		Name:       name,
		Body:       body,
		EffectType: effectType,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	msg.TS = float64(b.now().UnixNano()) / float64(time.Second)
	switch role {
	case RoleStreamer:
		b.streamer = trim(append(b.streamer, msg))
	case RoleAI:
		b.ai = trim(append(b.ai, msg))
	default:
		msg.Role = RoleViewer
		b.viewer = trim(append(b.viewer, msg))
	}
}

func trim(q []Message) []Message {
	if len(q) > maxBoardMessages {
		q = q[len(q)-maxBoardMessages:]
	}
	return q
}

// Clear empties every role board.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamer = nil
	b.ai = nil
	b.viewer = nil
}

// Snapshot returns copies of the role boards plus the merged timeline in
// timestamp order.
func (b *Board) Snapshot() Streams {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Streams{
		Streamer: append([]Message{}, b.streamer...),
		AI:       append([]Message{}, b.ai...),
		Viewer:   append([]Message{}, b.viewer...),
	}
	s.Timeline = make([]Message, 0, len(s.Streamer)+len(s.AI)+len(s.Viewer))
	s.Timeline = append(s.Timeline, s.Streamer...)
	s.Timeline = append(s.Timeline, s.AI...)
	s.Timeline = append(s.Timeline, s.Viewer...)
	sort.SliceStable(s.Timeline, func(i, j int) bool {
		return s.Timeline[i].TS < s.Timeline[j].TS
	})
	return s
}

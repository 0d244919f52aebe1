package effects

import (
	"sync"
	"time"

	"github.com/gyururu/cohost/telemetry"
)

// Params are the render parameters attached to one dispatched effect.
type Params struct {
	Duration  float64  `json:"duration"`
	Emoji     []string `json:"emoji"`
	Animation string   `json:"animation"`
	Count     int      `json:"count"`
	Area      string   `json:"area"`
	SizeMin   int      `json:"size_min"`
	SizeMax   int      `json:"size_max"`
}

// Request is one queued effect waiting to be picked up by the next overlay
// snapshot. TS is a unix timestamp in seconds, matching the snapshot format.
type Request struct {
	ID     string  `json:"id"`
	Params Params  `json:"params"`
	TS     float64 `json:"ts"`
}

// Queue buffers dispatched effects between snapshot cycles.
type Queue struct {
	mu    sync.Mutex
	items []Request
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue appends an effect stamped with the current time.
func (q *Queue) Enqueue(id string, params Params) {
	q.mu.Lock()
	q.items = append(q.items, Request{
		ID:     id,
		Params: params,
		TS:     float64(q.now().UnixNano()) / float64(time.Second),
	})
	depth := len(q.items)
	q.mu.Unlock()
	telemetry.SetEffectQueueDepth(depth)
}

// Drain returns all queued effects and clears the queue in one step. A
// second drain with no enqueues in between returns an empty slice.
func (q *Queue) Drain() []Request {
	q.mu.Lock()
	out := q.items
	q.items = nil
	q.mu.Unlock()
	telemetry.SetEffectQueueDepth(0)
	if out == nil {
		return []Request{}
	}
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

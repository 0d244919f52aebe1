package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/telemetry"
)

// Trigger kinds recorded in stats and on the bus.
const (
	TriggerChat   = "chat"
	TriggerAI     = "ai"
	TriggerManual = "manual"
)

const (
	defaultMaxConcurrent = 3
	defaultCooldown      = 5 * time.Second
	defaultEmojiSize     = 32
)

// ErrUnknownPreset is returned by Trigger for ids not in the preset set.
var ErrUnknownPreset = errors.New("unknown effect preset")

// Stats are cumulative trigger counts since startup.
type Stats struct {
	Total    int `json:"total_effects"`
	Chat     int `json:"chat_triggered"`
	AI       int `json:"ai_triggered"`
	Manual   int `json:"manual_triggered"`
	Deferred int `json:"deferred"`
	Skipped  int `json:"skipped"`
}

// aiKeywordRules maps keywords found in AI replies to the preset they fire.
// Checked in order; the first rule with a match wins.
var aiKeywordRules = []struct {
	words  []string
	preset string
}{
	{[]string{"おめでとう", "すごい", "素晴らしい"}, "confetti"},
	{[]string{"かわいい", "好き", "愛"}, "heart"},
	{[]string{"ありがとう", "感謝"}, "thanks"},
}

type pending struct {
	preset  Preset
	trigger string
	source  string
}

// Engine fires effect presets from chat keyword matches, AI replies and
// manual API calls, enforcing the per-preset cooldown and the cap on how
// many effects animate at once. Excess triggers are deferred in FIFO order
// and admitted as running effects finish, never dropped.
type Engine struct {
	bus   *events.Bus
	set   *Set
	queue *Queue

	density       float64
	cooldown      time.Duration
	maxConcurrent int

	mu       sync.Mutex
	active   int
	deferred []pending
	lastFire map[string]time.Time
	stats    Stats

	now      func() time.Time
	schedule func(time.Duration, func())
}

func NewEngine(bus *events.Bus, set *Set, queue *Queue) *Engine {
	return &Engine{
		bus:           bus,
		set:           set,
		queue:         queue,
		density:       1.0,
		cooldown:      defaultCooldown,
		maxConcurrent: defaultMaxConcurrent,
		lastFire:      make(map[string]time.Time),
		now:           time.Now,
		schedule:      func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// SetDensity scales every preset's emoji count. Clamped to 0.2..3.0.
func (e *Engine) SetDensity(d float64) {
	if d < 0.2 {
		d = 0.2
	}
	if d > 3.0 {
		d = 3.0
	}
	e.mu.Lock()
	e.density = d
	e.mu.Unlock()
}

// SetCooldown overrides the per-preset auto-trigger cooldown.
func (e *Engine) SetCooldown(d time.Duration) {
	e.mu.Lock()
	e.cooldown = d
	e.mu.Unlock()
}

// Run consumes comment and AI reply events until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	comments, unsubComments := e.bus.Subscribe(events.TopicComment)
	replies, unsubReplies := e.bus.Subscribe(events.TopicAIResponse)
	defer unsubComments()
	defer unsubReplies()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-comments:
			if ev, ok := msg.(comment.Event); ok {
				e.HandleComment(ev)
			}
		case msg := <-replies:
			if r, ok := msg.(events.AIResponse); ok {
				e.HandleAIReply(r.Text)
			}
		}
	}
}

// HandleComment scans a comment against every enabled preset's trigger words
// (case-insensitive substring). At most one effect fires per comment.
func (e *Engine) HandleComment(ev comment.Event) {
	text := strings.ToLower(ev.Message)
	if text == "" {
		return
	}
	for _, p := range e.set.All() {
		if !p.Enabled {
			continue
		}
		for _, w := range p.TriggerWords {
			if w != "" && strings.Contains(text, strings.ToLower(w)) {
				if err := e.Trigger(p.ID, TriggerChat, ev.UserName); err != nil {
					slog.Debug("effects: chat trigger rejected", slog.String("preset", p.ID), slog.Any("err", err))
				}
				return
			}
		}
	}
}

// HandleAIReply fires a preset when an AI reply contains one of the fixed
// celebration keywords.
func (e *Engine) HandleAIReply(text string) {
	lower := strings.ToLower(text)
	if lower == "" {
		return
	}
	for _, rule := range aiKeywordRules {
		for _, w := range rule.words {
			if strings.Contains(lower, w) {
				if err := e.Trigger(rule.preset, TriggerAI, "AI"); err != nil {
					slog.Debug("effects: ai trigger rejected", slog.String("preset", rule.preset), slog.Any("err", err))
				}
				return
			}
		}
	}
}

// Trigger dispatches the preset id. Manual triggers bypass the cooldown;
// chat and ai triggers inside the cooldown window are skipped silently.
// The dispatch is deferred, not dropped, when the concurrency cap is full.
func (e *Engine) Trigger(id, trigger, source string) error {
	p, ok := e.set.Get(id)
	if !ok {
		telemetry.CountEffectSkipped()
		return fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	if !p.Enabled {
		telemetry.CountEffectSkipped()
		return fmt.Errorf("preset %s is disabled", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if trigger != TriggerManual {
		if last, ok := e.lastFire[p.ID]; ok && now.Sub(last) < e.cooldown {
			e.stats.Skipped++
			telemetry.CountEffectSkipped()
			return nil
		}
	}
	e.lastFire[p.ID] = now

	if e.active >= e.maxConcurrent {
		e.deferred = append(e.deferred, pending{preset: p, trigger: trigger, source: source})
		e.stats.Deferred++
		telemetry.CountEffectDeferred()
		slog.Debug("effects: dispatch deferred", slog.String("preset", p.ID), slog.Int("waiting", len(e.deferred)))
		return nil
	}
	e.dispatchLocked(p, trigger, source)
	return nil
}

// dispatchLocked performs the actual dispatch. Caller holds e.mu.
func (e *Engine) dispatchLocked(p Preset, trigger, source string) {
	e.active++
	e.queue.Enqueue(p.ID, e.paramsFor(p))
	e.bus.Publish(events.TopicEffectTrigger, events.EffectTrigger{
		PresetID: p.ID,
		Trigger:  trigger,
		Source:   source,
	})

	e.stats.Total++
	switch trigger {
	case TriggerChat:
		e.stats.Chat++
	case TriggerAI:
		e.stats.AI++
	case TriggerManual:
		e.stats.Manual++
	}
	telemetry.CountEffectTriggered(trigger)
	slog.Info("effects: dispatched",
		slog.String("preset", p.ID),
		slog.String("trigger", trigger),
		slog.String("source", source))

	// The slot is held for the preset's animation duration.
	hold := time.Duration(p.Duration * float64(time.Second))
	e.schedule(hold, func() { e.release() })
}

// release frees one slot and admits the oldest deferred dispatch, if any.
func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active > 0 {
		e.active--
	}
	if len(e.deferred) == 0 {
		return
	}
	next := e.deferred[0]
	e.deferred = e.deferred[1:]
	e.dispatchLocked(next.preset, next.trigger, next.source)
}

// Active reports how many effects currently hold a slot.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Waiting reports how many dispatches are deferred behind the cap.
func (e *Engine) Waiting() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.deferred)
}

// Stats returns a copy of the cumulative trigger counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) paramsFor(p Preset) Params {
	count := int(float64(p.Count) * e.density)
	if count < 1 {
		count = 1
	}
	return Params{
		Duration:  p.Duration,
		Emoji:     p.Emoji,
		Animation: p.Animation,
		Count:     count,
		Area:      p.Area,
		SizeMin:   defaultEmojiSize,
		SizeMax:   defaultEmojiSize,
	}
}

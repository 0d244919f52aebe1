package ai

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/telemetry"
)

const generateTimeout = 15 * time.Second

// Responder listens for comments and decides, per comment, whether the AI
// co-host answers. The gate is a reply probability plus a per-source
// cooldown so one busy source cannot monopolize the co-host.
type Responder struct {
	bus *events.Bus
	gen Generator

	probability float64
	cooldown    time.Duration
	voice       bool
	voiceID     int

	mu        sync.Mutex
	lastReply map[string]time.Time

	randFloat func() float64
	now       func() time.Time
}

func NewResponder(bus *events.Bus, gen Generator, probability float64, cooldown time.Duration) *Responder {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return &Responder{
		bus:         bus,
		gen:         gen,
		probability: probability,
		cooldown:    cooldown,
		voice:       true,
		lastReply:   make(map[string]time.Time),
		randFloat:   rand.Float64,
		now:         time.Now,
	}
}

// SetVoice controls whether replies also become TTS requests.
func (r *Responder) SetVoice(enabled bool, voiceID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voice = enabled
	r.voiceID = voiceID
}

// Run consumes comment events until ctx is done.
func (r *Responder) Run(ctx context.Context) {
	comments, unsub := r.bus.Subscribe(events.TopicComment)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-comments:
			if ev, ok := msg.(comment.Event); ok {
				r.Handle(ctx, ev)
			}
		}
	}
}

// Handle runs the reply gate for one comment and, when it passes, generates
// and publishes the reply.
func (r *Responder) Handle(ctx context.Context, ev comment.Event) {
	if strings.TrimSpace(ev.Message) == "" {
		return
	}
	if !r.shouldReply(ev.Source) {
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var reply string
	var err error
	telemetry.TimeFunc(telemetry.AIReplyDuration, func() {
		reply, err = r.gen.Reply(genCtx, ev.UserName, ev.Message)
	})
	if err != nil {
		slog.Error("ai: reply generation failed", slog.String("source", ev.Source), slog.Any("err", err))
		r.bus.Publish(events.TopicAppError, map[string]any{"source": "ai", "error": err.Error()})
		return
	}
	if reply == "" {
		return
	}

	resp := events.AIResponse{
		ID:        uuid.NewString(),
		Text:      reply,
		InReplyTo: ev.UserName,
		Model:     r.gen.Model(),
	}
	r.bus.Publish(events.TopicAIResponse, resp)
	if telemetry.AIRepliesSent != nil {
		telemetry.AIRepliesSent.Inc()
	}

	r.mu.Lock()
	voice, voiceID := r.voice, r.voiceID
	r.mu.Unlock()
	if voice {
		r.bus.Publish(events.TopicTTSRequest, events.TTSRequest{
			Text:    reply,
			Role:    "ai",
			VoiceID: voiceID,
		})
	}
}

// shouldReply applies the probability gate and the per-source cooldown. A
// passing comment claims the cooldown window immediately.
func (r *Responder) shouldReply(source string) bool {
	if r.probability <= 0 {
		return false
	}
	if r.probability < 1.0 && r.randFloat() > r.probability {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.lastReply[source]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.lastReply[source] = now
	return true
}

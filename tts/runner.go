package tts

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/telemetry"
)

// Speaker is the voice backend the runner drains into.
type Speaker interface {
	Speak(ctx context.Context, text string, voiceID int) (method string, err error)
}

// Runner serializes speech: a single worker drains a FIFO queue so utterances
// never overlap. Requests arrive over the bus on TopicTTSRequest; outcomes go
// back out on TopicTTSSpoken.
type Runner struct {
	bus     *events.Bus
	speaker Speaker

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []events.TTSRequest
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(bus *events.Bus, speaker Speaker) *Runner {
	r := &Runner{bus: bus, speaker: speaker}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the worker and the bus consumer. Both stop when ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.work(ctx)
	}()

	requests, unsub := r.bus.Subscribe(events.TopicTTSRequest)
	go r.consume(ctx, requests, unsub)

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.cond.Broadcast()
	}()
}

// Enqueue queues one utterance. Empty text is dropped.
func (r *Runner) Enqueue(req events.TTSRequest) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, req)
	depth := len(r.queue)
	r.mu.Unlock()

	telemetry.SetTTSQueueDepth(depth)
	r.cond.Signal()
}

// QueueLen reports how many requests are waiting.
func (r *Runner) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Wait blocks until the worker goroutine has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) consume(ctx context.Context, requests <-chan any, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-requests:
			if req, ok := msg.(events.TTSRequest); ok {
				r.Enqueue(req)
			}
		}
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		req, ok := r.next()
		if !ok {
			return
		}
		r.speak(ctx, req)
	}
}

func (r *Runner) next() (events.TTSRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.closed {
			return events.TTSRequest{}, false
		}
		if len(r.queue) > 0 {
			req := r.queue[0]
			r.queue = r.queue[1:]
			telemetry.SetTTSQueueDepth(len(r.queue))
			return req, true
		}
		r.cond.Wait()
	}
}

func (r *Runner) speak(ctx context.Context, req events.TTSRequest) {
	method, err := r.speaker.Speak(ctx, req.Text, req.VoiceID)
	spoken := events.TTSSpoken{Text: req.Text, Method: method, Success: err == nil}
	if err != nil {
		spoken.Error = err.Error()
		telemetry.CountTTSFailed()
		slog.Warn("tts: speak failed", slog.String("role", req.Role), slog.Any("err", err))
	} else {
		telemetry.CountTTSSent(method)
	}
	r.bus.Publish(events.TopicTTSSpoken, spoken)
}

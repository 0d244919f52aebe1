package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

type fakeGen struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
}

func (f *fakeGen) Reply(_ context.Context, userName, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGen) Model() string { return "fake" }

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestResponder(gen Generator, probability float64, cooldown time.Duration) (*Responder, *events.Bus) {
	bus := events.NewBus()
	r := NewResponder(bus, gen, probability, cooldown)
	r.randFloat = func() float64 { return 0.0 } // probability gate always passes unless p == 0
	return r, bus
}

func TestHandlePublishesReplyAndTTS(t *testing.T) {
	gen := &fakeGen{reply: "こんにちは！"}
	r, bus := newTestResponder(gen, 1.0, time.Minute)

	replies, unsubReplies := bus.Subscribe(events.TopicAIResponse)
	ttsReqs, unsubTTS := bus.Subscribe(events.TopicTTSRequest)
	defer unsubReplies()
	defer unsubTTS()

	r.Handle(context.Background(), comment.Event{Source: "manual", UserName: "alice", Message: "hello"})

	select {
	case msg := <-replies:
		resp := msg.(events.AIResponse)
		if resp.Text != "こんにちは！" || resp.ID == "" || resp.Model != "fake" || resp.InReplyTo != "alice" {
			t.Errorf("response = %+v", resp)
		}
	default:
		t.Fatal("no AI response published")
	}
	select {
	case msg := <-ttsReqs:
		req := msg.(events.TTSRequest)
		if req.Text != "こんにちは！" || req.Role != "ai" {
			t.Errorf("tts request = %+v", req)
		}
	default:
		t.Fatal("no TTS request published")
	}
}

func TestHandleVoiceDisabled(t *testing.T) {
	gen := &fakeGen{reply: "ok"}
	r, bus := newTestResponder(gen, 1.0, time.Minute)
	r.SetVoice(false, 0)

	ttsReqs, unsub := bus.Subscribe(events.TopicTTSRequest)
	defer unsub()

	r.Handle(context.Background(), comment.Event{Source: "manual", Message: "hi"})
	select {
	case <-ttsReqs:
		t.Fatal("TTS request published with voice disabled")
	default:
	}
}

func TestPerSourceCooldown(t *testing.T) {
	gen := &fakeGen{reply: "ok"}
	r, _ := newTestResponder(gen, 1.0, 20*time.Second)
	ts := time.Unix(1700000000, 0)
	r.now = func() time.Time { return ts }

	ev := comment.Event{Source: "onecomme_legacy", Message: "one"}
	r.Handle(context.Background(), ev)
	r.Handle(context.Background(), ev)
	if gen.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1 (cooldown)", gen.callCount())
	}

	// A different source has its own window.
	r.Handle(context.Background(), comment.Event{Source: "tcpline", Message: "two"})
	if gen.callCount() != 2 {
		t.Fatalf("second source blocked: calls = %d", gen.callCount())
	}

	ts = ts.Add(21 * time.Second)
	r.Handle(context.Background(), ev)
	if gen.callCount() != 3 {
		t.Fatalf("post-cooldown comment blocked: calls = %d", gen.callCount())
	}
}

func TestProbabilityGate(t *testing.T) {
	gen := &fakeGen{reply: "ok"}
	r, _ := newTestResponder(gen, 0.3, 0)
	r.randFloat = func() float64 { return 0.9 } // above probability, skip

	r.Handle(context.Background(), comment.Event{Source: "a", Message: "hi"})
	if gen.callCount() != 0 {
		t.Fatal("comment above probability threshold should be skipped")
	}

	r.randFloat = func() float64 { return 0.1 }
	r.Handle(context.Background(), comment.Event{Source: "a", Message: "hi"})
	if gen.callCount() != 1 {
		t.Fatal("comment under probability threshold should reply")
	}

	// probability 0 never replies, regardless of the roll
	r2, _ := newTestResponder(gen, 0.0, 0)
	r2.Handle(context.Background(), comment.Event{Source: "a", Message: "hi"})
	if gen.callCount() != 1 {
		t.Fatal("probability 0 must never reply")
	}
}

func TestGeneratorErrorPublishesAppError(t *testing.T) {
	gen := &fakeGen{err: errors.New("api down")}
	r, bus := newTestResponder(gen, 1.0, 0)

	appErrs, unsub := bus.Subscribe(events.TopicAppError)
	defer unsub()

	r.Handle(context.Background(), comment.Event{Source: "a", Message: "hi"})
	select {
	case <-appErrs:
	default:
		t.Fatal("generator failure should publish an app error")
	}
}

func TestEchoGenerator(t *testing.T) {
	g := EchoGenerator{}
	reply, err := g.Reply(context.Background(), "alice", "こんにちは")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "alice") || !strings.Contains(reply, "こんにちは") {
		t.Errorf("echo reply = %q", reply)
	}

	long := strings.Repeat("あ", 50)
	reply, err = g.Reply(context.Background(), "", long)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(reply, long) {
		t.Error("long messages should be truncated in the echo")
	}

	if _, err := g.Reply(context.Background(), "a", "  "); err == nil {
		t.Error("empty message should error")
	}
}

package overlay

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/gyururu/cohost/effects"
)

func TestBoardSnapshotTimelineOrder(t *testing.T) {
	b := NewBoard()
	ts := time.Unix(1700000000, 0)
	b.now = func() time.Time { ts = ts.Add(time.Second); return ts }

	b.Push(RoleViewer, "alice", "first", "")
	b.Push(RoleAI, "AI", "second", "pop")
	b.Push(RoleStreamer, "gyururu", "third", "slide")

	s := b.Snapshot()
	if len(s.Viewer) != 1 || len(s.AI) != 1 || len(s.Streamer) != 1 {
		t.Fatalf("role boards = %d/%d/%d", len(s.Streamer), len(s.AI), len(s.Viewer))
	}
	if len(s.Timeline) != 3 {
		t.Fatalf("timeline length = %d", len(s.Timeline))
	}
	for i, want := range []string{"first", "second", "third"} {
		if s.Timeline[i].Body != want {
			t.Errorf("timeline[%d] = %q, want %q", i, s.Timeline[i].Body, want)
		}
	}
	if s.Viewer[0].EffectType != "fadeUp" {
		t.Errorf("empty effect type should default to fadeUp, got %q", s.Viewer[0].EffectType)
	}
}

func TestBoardUnknownRoleGoesToViewer(t *testing.T) {
	b := NewBoard()
	b.Push("moderator", "mod", "hi", "")
	s := b.Snapshot()
	if len(s.Viewer) != 1 || s.Viewer[0].Role != RoleViewer {
		t.Fatalf("unknown role not folded into viewer: %+v", s)
	}
}

func TestBoardClearAndRetention(t *testing.T) {
	b := NewBoard()
	for i := 0; i < maxBoardMessages+10; i++ {
		b.Push(RoleViewer, "u", "m", "")
	}
	if got := len(b.Snapshot().Viewer); got != maxBoardMessages {
		t.Fatalf("retention cap not applied: %d", got)
	}
	b.Clear()
	s := b.Snapshot()
	if len(s.Timeline) != 0 {
		t.Fatalf("clear left %d timeline entries", len(s.Timeline))
	}
}

func TestMetaFromJSON(t *testing.T) {
	m, err := MetaFromJSON("")
	if err != nil {
		t.Fatal(err)
	}
	if m.Canvas.Width != 1920 || m.Display.Flow.Direction != "DOWN" || m.Role.AI.Color != "#9B59B6" {
		t.Errorf("defaults = %+v", m)
	}

	m, err = MetaFromJSON(`{"canvas": {"width": 1280, "height": 720}, "display": {"flow": {"direction": "UP"}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if m.Canvas.Width != 1280 || m.Display.Flow.Direction != "UP" {
		t.Errorf("override not applied: %+v", m)
	}
	if m.Role.Streamer.Color != "#4A90E2" {
		t.Errorf("untouched default changed: %+v", m.Role)
	}

	if _, err := MetaFromJSON("{broken"); err == nil {
		t.Error("invalid JSON should fail")
	}
}

func TestWriterWritesAtomicSnapshot(t *testing.T) {
	dir := t.TempDir()
	board := NewBoard()
	queue := effects.NewQueue()
	board.Push(RoleViewer, "alice", "hello", "")
	queue.Enqueue("confetti", effects.Params{Count: 50, Animation: "fall"})

	w := NewWriter(board, queue, DefaultMeta(), dir, time.Second)
	var broadcasted []byte
	w.SetBroadcast(func(b []byte) { broadcasted = b })

	if err := w.WriteOnce(); err != nil {
		t.Fatalf("WriteOnce: %v", err)
	}

	raw, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("snapshot file: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if snap.GeneratedAt == 0 {
		t.Error("generated_at missing")
	}
	if len(snap.Streams.Timeline) != 1 || snap.Streams.Timeline[0].Body != "hello" {
		t.Errorf("streams = %+v", snap.Streams)
	}
	if len(snap.Effects) != 1 || snap.Effects[0].ID != "confetti" {
		t.Errorf("effects = %+v", snap.Effects)
	}
	if broadcasted == nil {
		t.Error("broadcast hook not called")
	}
	if _, err := os.Stat(w.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("tmp file left behind")
	}

	// The queue drains into exactly one snapshot.
	if err := w.WriteOnce(); err != nil {
		t.Fatal(err)
	}
	raw, _ = os.ReadFile(w.Path())
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Effects) != 0 {
		t.Errorf("second snapshot repeated %d effects", len(snap.Effects))
	}
}

package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/effects"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/telemetry"
)

const dataFilename = "data.json"

// Snapshot is the full document the overlay page polls.
type Snapshot struct {
	Meta        Meta              `json:"meta"`
	Streams     Streams           `json:"streams"`
	Effects     []effects.Request `json:"effects"`
	GeneratedAt float64           `json:"generated_at"`
}

// Writer assembles snapshots from the board and the effect queue and writes
// them to <data-dir>/overlay/data.json on an interval. Each write is atomic
// (tmp file then rename) so the browser source never sees a torn document.
type Writer struct {
	board    *Board
	queue    *effects.Queue
	meta     Meta
	outDir   string
	interval time.Duration

	broadcast func([]byte)
	now       func() time.Time
}

func NewWriter(board *Board, queue *effects.Queue, meta Meta, dataDir string, interval time.Duration) *Writer {
	return &Writer{
		board:    board,
		queue:    queue,
		meta:     meta,
		outDir:   filepath.Join(dataDir, "overlay"),
		interval: interval,
		now:      time.Now,
	}
}

// SetBroadcast installs a hook that receives every written snapshot, used to
// fan the document out to WebSocket overlay clients.
func (w *Writer) SetBroadcast(fn func([]byte)) {
	w.broadcast = fn
}

// Path returns the snapshot file location.
func (w *Writer) Path() string {
	return filepath.Join(w.outDir, dataFilename)
}

// Snapshot assembles the current document. Draining the effect queue is part
// of assembly, so each dispatched effect appears in exactly one snapshot.
func (w *Writer) Snapshot() Snapshot {
	return Snapshot{
		Meta:        w.meta,
		Streams:     w.board.Snapshot(),
		Effects:     w.queue.Drain(),
		GeneratedAt: float64(w.now().UnixNano()) / float64(time.Second),
	}
}

// SnapshotJSON renders the current document without draining the effect
// queue, for serving to a client that just connected. Pending effects stay
// queued for the next periodic write.
func (w *Writer) SnapshotJSON() ([]byte, error) {
	snap := Snapshot{
		Meta:        w.meta,
		Streams:     w.board.Snapshot(),
		Effects:     []effects.Request{},
		GeneratedAt: float64(w.now().UnixNano()) / float64(time.Second),
	}
	return json.Marshal(snap)
}

// WriteOnce assembles and persists one snapshot.
func (w *Writer) WriteOnce() error {
	var err error
	telemetry.TimeFunc(telemetry.SnapshotWriteDuration, func() {
		err = w.write()
	})
	return err
}

func (w *Writer) write() error {
	snap := w.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return fmt.Errorf("create overlay dir: %w", err)
	}
	path := w.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	if telemetry.SnapshotsWritten != nil {
		telemetry.SnapshotsWritten.Inc()
	}
	if w.broadcast != nil {
		w.broadcast(data)
	}
	return nil
}

// Run writes snapshots on the configured interval until ctx is done. Write
// failures are logged and the loop keeps going.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteOnce(); err != nil {
				slog.Error("overlay: snapshot write failed", slog.Any("err", err))
			}
		}
	}
}

// Collector feeds the board from bus events: viewer comments and AI replies.
type Collector struct {
	bus   *events.Bus
	board *Board
}

func NewCollector(bus *events.Bus, board *Board) *Collector {
	return &Collector{bus: bus, board: board}
}

// Run consumes comment and AI reply events until ctx is done. Comments land
// on the viewer board under the commenter's name; AI replies on the AI board.
func (c *Collector) Run(ctx context.Context) {
	comments, unsubComments := c.bus.Subscribe(events.TopicComment)
	replies, unsubReplies := c.bus.Subscribe(events.TopicAIResponse)
	defer unsubComments()
	defer unsubReplies()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-comments:
			if ev, ok := msg.(comment.Event); ok {
				c.board.Push(RoleViewer, ev.UserName, ev.Message, defaultViewerEffect)
			}
		case msg := <-replies:
			if r, ok := msg.(events.AIResponse); ok {
				c.board.Push(RoleAI, "AI", r.Text, defaultAIEffect)
			}
		}
	}
}

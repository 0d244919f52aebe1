package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

// SourceTCPLine identifies the plain-TCP comment feed: one JSON object per
// line, {author, comment, user_id, platform}.
const SourceTCPLine = "tcpline"

// Lines above this size are malformed senders, not comments.
const maxLineBytes = 64 * 1024

type tcpConnector struct {
	base

	sessionMu sync.Mutex
	cancel    context.CancelFunc
	conn      net.Conn
	wg        sync.WaitGroup
}

// NewTCPLine returns the TCP line-delimited JSON connector. The target is a
// "host:port" address rather than a URL.
func NewTCPLine(bus *events.Bus) Connector {
	return &tcpConnector{base: base{source: SourceTCPLine, bus: bus}}
}

func (c *tcpConnector) Connect(ctx context.Context, target string) error {
	if _, _, err := net.SplitHostPort(target); err != nil {
		err = fmt.Errorf("invalid address %q (want host:port): %w", target, err)
		c.setURL(target)
		slog.Warn("connector: bad address", slog.String("source", c.source), slog.Any("err", err))
		c.publishStatus(StateError, err)
		return err
	}

	c.Disconnect()
	c.setURL(target)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		slog.Warn("connector: dial failed", slog.String("source", c.source), slog.String("addr", target), slog.Any("err", err))
		c.publishStatus(StateError, err)
		return fmt.Errorf("dial %s: %w", target, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.sessionMu.Lock()
	c.cancel = cancel
	c.conn = conn
	c.sessionMu.Unlock()

	c.setConnected(true)
	slog.Info("connector: connected", slog.String("source", c.source), slog.String("addr", target))
	c.publishStatus(StateConnected, nil)

	c.wg.Add(1)
	go c.run(runCtx, conn)
	return nil
}

func (c *tcpConnector) Disconnect() {
	c.sessionMu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.sessionMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.setConnected(false)
	c.wg.Wait()
}

func (c *tcpConnector) run(ctx context.Context, conn net.Conn) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)
		c.publishComment(parseTCPLine(raw))
	}

	c.setConnected(false)
	if ctx.Err() != nil {
		c.publishStatus(StateDisconnected, nil)
		return
	}
	if err := scanner.Err(); err != nil {
		slog.Error("connector: read loop", slog.String("source", c.source), slog.Any("err", err))
		c.publishStatus(StateError, err)
		return
	}
	slog.Info("connector: closed by peer", slog.String("source", c.source))
	c.publishStatus(StateDisconnected, nil)
}

func parseTCPLine(raw []byte) comment.Event {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return comment.New(SourceTCPLine, "", "", "", string(raw), raw)
	}
	return comment.New(
		SourceTCPLine,
		pickString(obj, "platform"),
		pickString(obj, "user_id"),
		pickString(obj, "author", "name", "user"),
		pickString(obj, "comment", "message", "text"),
		raw,
	)
}

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

const (
	dialTimeout  = 5 * time.Second
	writeWait    = 5 * time.Second
	pingInterval = 20 * time.Second
	pongWait     = 30 * time.Second

	initialBackoff = time.Second
	maxBackoff     = 10 * time.Second
)

// wsConnector is the shared websocket transport. Concrete connectors differ
// only in their parse function and whether they auto-reconnect.
type wsConnector struct {
	base
	parse     func(raw []byte) []comment.Event
	reconnect bool

	sessionMu sync.Mutex
	cancel    context.CancelFunc
	conn      *websocket.Conn
	wg        sync.WaitGroup
}

func newWSConnector(source string, bus *events.Bus, parse func([]byte) []comment.Event, reconnect bool) *wsConnector {
	return &wsConnector{
		base:      base{source: source, bus: bus},
		parse:     parse,
		reconnect: reconnect,
	}
}

// Connect dials rawURL and starts the read loop. A malformed URL or a
// transport rejection returns an error and leaves IsConnected false.
func (c *wsConnector) Connect(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		err = fmt.Errorf("invalid websocket url %q", rawURL)
		c.setURL(rawURL)
		slog.Warn("connector: bad url", slog.String("source", c.source), slog.Any("err", err))
		c.publishStatus(StateError, err)
		return err
	}

	// Drop any previous session first.
	c.Disconnect()
	c.setURL(rawURL)

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()
	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, rawURL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		slog.Warn("connector: dial failed", slog.String("source", c.source), slog.String("url", rawURL), slog.Any("err", err))
		c.publishStatus(StateError, err)
		return fmt.Errorf("dial %s: %w", rawURL, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.sessionMu.Lock()
	c.cancel = cancel
	c.conn = conn
	c.sessionMu.Unlock()

	c.setConnected(true)
	slog.Info("connector: connected", slog.String("source", c.source), slog.String("url", rawURL))
	c.publishStatus(StateConnected, nil)

	c.wg.Add(1)
	go c.run(runCtx, conn)
	return nil
}

// Disconnect stops the session. Safe to call repeatedly or without a prior
// Connect.
func (c *wsConnector) Disconnect() {
	c.sessionMu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.sessionMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	}
	c.setConnected(false)
	c.wg.Wait()
}

func (c *wsConnector) storeConn(conn *websocket.Conn) {
	c.sessionMu.Lock()
	c.conn = conn
	c.sessionMu.Unlock()
}

func (c *wsConnector) run(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	backoff := initialBackoff
	for {
		if conn != nil {
			err := c.readLoop(ctx, conn)
			_ = conn.Close()
			conn = nil
			c.setConnected(false)
			if ctx.Err() != nil {
				c.publishStatus(StateDisconnected, nil)
				return
			}
			if err != nil {
				slog.Error("connector: read loop", slog.String("source", c.source), slog.Any("err", err))
				c.publishStatus(StateError, err)
			} else {
				slog.Info("connector: closed by peer", slog.String("source", c.source))
				c.publishStatus(StateDisconnected, nil)
			}
		}

		if !c.reconnect || ctx.Err() != nil {
			return
		}

		slog.Info("connector: reconnecting", slog.String("source", c.source), slog.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}

		dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
		newConn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.URL(), nil)
		cancelDial()
		if err != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			c.publishStatus(StateError, err)
			continue
		}
		conn = newConn
		c.storeConn(conn)
		c.setConnected(true)
		c.publishStatus(StateConnected, nil)
		backoff = initialBackoff
	}
}

func (c *wsConnector) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		for _, ev := range c.parse(raw) {
			c.publishComment(ev)
		}
	}
}

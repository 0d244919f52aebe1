package bridge

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/telemetry"
)

// Connector state values published with events.ConnectorStatus.
const (
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
	StateError        = "error"
)

// Connector adapts one external comment source. Connect returns an error when
// the target is malformed or the transport rejects it, leaving IsConnected
// false; Disconnect is idempotent.
type Connector interface {
	Connect(ctx context.Context, target string) error
	Disconnect()
	IsConnected() bool
	URL() string
	Source() string
}

// base carries the state shared by every connector: the source name, the bus
// it publishes to, and the {url, connected} pair.
type base struct {
	source string
	bus    *events.Bus

	mu        sync.Mutex
	url       string
	connected bool
}

func (b *base) Source() string { return b.source }

func (b *base) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

func (b *base) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *base) setURL(u string) {
	b.mu.Lock()
	b.url = u
	b.mu.Unlock()
}

func (b *base) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

// publishComment publishes one normalized event, skipping messages that are
// empty after trimming (the source sent housekeeping or malformed data).
func (b *base) publishComment(ev comment.Event) {
	if strings.TrimSpace(ev.Message) == "" {
		telemetry.CountCommentSkipped(b.source)
		return
	}
	telemetry.CountCommentReceived(b.source)
	b.bus.Publish(events.TopicComment, ev)
}

func (b *base) publishStatus(state string, err error) {
	st := events.ConnectorStatus{
		State:     state,
		URL:       b.URL(),
		Connector: b.source,
	}
	if err != nil {
		st.Error = err.Error()
	}
	b.bus.Publish(events.TopicConnectorStatus, st)
}

// pickString returns the first present, non-empty value among keys. Numeric
// ids are formatted rather than discarded since some sources send them raw.
func pickString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

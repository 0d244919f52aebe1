package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/events"
)

// SourceTwitch identifies the direct Twitch IRC connector. Its target is a
// channel name, not a URL.
const SourceTwitch = "twitch"

type twitchConnector struct {
	base
	username string
	oauth    string

	sessionMu sync.Mutex
	client    *twitch.Client
	cancel    context.CancelFunc
}

// NewTwitch returns a Twitch IRC connector authenticating with the given bot
// credentials.
func NewTwitch(bus *events.Bus, username, oauth string) Connector {
	return &twitchConnector{
		base:     base{source: SourceTwitch, bus: bus},
		username: username,
		oauth:    oauth,
	}
}

func (c *twitchConnector) Connect(ctx context.Context, channel string) error {
	if channel == "" {
		err := fmt.Errorf("twitch channel empty")
		c.publishStatus(StateError, err)
		return err
	}
	if c.username == "" || c.oauth == "" {
		err := fmt.Errorf("twitch credentials missing")
		c.publishStatus(StateError, err)
		return err
	}

	c.Disconnect()
	c.setURL(channel)

	client := twitch.NewClient(c.username, c.oauth)
	client.OnConnect(func() {
		c.setConnected(true)
		slog.Info("connector: connected", slog.String("source", c.source), slog.String("channel", channel))
		c.publishStatus(StateConnected, nil)
	})
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		c.publishComment(normalizeTwitch(channel, msg))
	})
	client.Join(channel)

	runCtx, cancel := context.WithCancel(ctx)
	c.sessionMu.Lock()
	c.client = client
	c.cancel = cancel
	c.sessionMu.Unlock()

	go func() {
		<-runCtx.Done()
		_ = client.Disconnect()
	}()
	go func() {
		// Connect blocks for the lifetime of the session; the library retries
		// transient drops internally.
		if err := client.Connect(); err != nil && runCtx.Err() == nil {
			slog.Error("connector: twitch session ended", slog.Any("err", err))
			c.setConnected(false)
			c.publishStatus(StateError, err)
			return
		}
		c.setConnected(false)
		c.publishStatus(StateDisconnected, nil)
	}()
	return nil
}

func (c *twitchConnector) Disconnect() {
	c.sessionMu.Lock()
	cancel := c.cancel
	c.cancel, c.client = nil, nil
	c.sessionMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.setConnected(false)
}

// normalizeTwitch maps an IRC private message into the shared event shape.
// The raw IRC line is wrapped in JSON so the forensic field stays a document.
func normalizeTwitch(channel string, msg twitch.PrivateMessage) comment.Event {
	raw, _ := json.Marshal(map[string]string{"channel": channel, "irc": msg.Raw})
	name := msg.User.DisplayName
	if name == "" {
		name = msg.User.Name
	}
	return comment.New(SourceTwitch, "twitch", msg.User.ID, name, msg.Message, raw)
}

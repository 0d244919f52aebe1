// Package tts speaks text through Bouyomi-chan, a Windows text-to-speech
// application exposing a TCP binary protocol and an HTTP endpoint. The
// client probes both, prefers TCP, and flips methods on send failure so a
// restarted Bouyomi-chan is picked up without operator action.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Send methods.
const (
	MethodTCP  = "tcp"
	MethodHTTP = "http"
)

const (
	bouyomiTalkCommand = 0x0001
	probeTimeout       = 2 * time.Second
	tcpSendTimeout     = 5 * time.Second
	httpSendTimeout    = 10 * time.Second
	reprobeInterval    = 5 * time.Minute
)

// ErrUnavailable is returned when no send method is currently reachable.
var ErrUnavailable = errors.New("bouyomi: no connection method available")

// Status is the observable connection state, exposed on the status API.
type Status struct {
	TCPAvailable bool   `json:"tcp_available"`
	HTTPAvail    bool   `json:"http_available"`
	Preferred    string `json:"preferred_method,omitempty"`
	TCPSends     int    `json:"tcp_sends"`
	HTTPSends    int    `json:"http_sends"`
	TCPErrors    int    `json:"tcp_errors"`
	HTTPErrors   int    `json:"http_errors"`
}

// Client talks to one Bouyomi-chan instance.
type Client struct {
	host     string
	tcpPort  int
	httpPort int

	speed  int
	tone   int
	volume int

	httpc *http.Client
	dial  func(ctx context.Context, addr string) (net.Conn, error)

	mu        sync.Mutex
	tcpOK     bool
	httpOK    bool
	preferred string
	stats     Status
}

func NewClient(host string, tcpPort, httpPort int) *Client {
	c := &Client{
		host:     host,
		tcpPort:  tcpPort,
		httpPort: httpPort,
		speed:    100,
		tone:     100,
		volume:   70,
		httpc:    &http.Client{Timeout: httpSendTimeout},
	}
	c.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	return c
}

// SetVoiceParams overrides speed, tone and volume, clamped to the ranges
// Bouyomi-chan accepts (speed 50-300, tone 50-200, volume 0-100).
func (c *Client) SetVoiceParams(speed, tone, volume int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = clamp(speed, 50, 300)
	c.tone = clamp(tone, 50, 200)
	c.volume = clamp(volume, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Probe tests both methods and picks the preferred one, TCP first.
func (c *Client) Probe(ctx context.Context) {
	tcpOK := c.probeTCP(ctx)
	httpOK := c.probeHTTP(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tcpOK, c.httpOK = tcpOK, httpOK
	switch {
	case tcpOK:
		c.preferred = MethodTCP
	case httpOK:
		c.preferred = MethodHTTP
	default:
		c.preferred = ""
	}
	slog.Info("bouyomi: probe complete",
		slog.Bool("tcp", tcpOK), slog.Bool("http", httpOK), slog.String("preferred", c.preferred))
}

func (c *Client) probeTCP(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	conn, err := c.dial(ctx, c.tcpAddr())
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (c *Client) probeHTTP(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.talkURL(url.Values{"text": {""}}), nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Available reports whether any method is reachable.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferred != ""
}

// Status returns the current connection state and send counters.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.TCPAvailable = c.tcpOK
	st.HTTPAvail = c.httpOK
	st.Preferred = c.preferred
	return st
}

// Speak sends text using the preferred method, falling back to the other on
// failure and flipping the preference when the fallback works. Returns the
// method that succeeded. When both fail, availability is reset so the
// re-probe loop can recover it.
func (c *Client) Speak(ctx context.Context, text string, voiceID int) (string, error) {
	if text == "" {
		return "", errors.New("bouyomi: empty text")
	}

	c.mu.Lock()
	preferred := c.preferred
	tcpOK, httpOK := c.tcpOK, c.httpOK
	c.mu.Unlock()

	if preferred == "" {
		return "", ErrUnavailable
	}

	try := func(method string) error {
		if method == MethodTCP {
			return c.sendTCP(ctx, text, voiceID)
		}
		return c.sendHTTP(ctx, text, voiceID)
	}
	fallbackFor := func(method string) string {
		if method == MethodTCP && httpOK {
			return MethodHTTP
		}
		if method == MethodHTTP && tcpOK {
			return MethodTCP
		}
		return ""
	}

	err := try(preferred)
	if err == nil {
		c.recordSend(preferred, "")
		return preferred, nil
	}
	c.recordSend("", preferred)

	if fb := fallbackFor(preferred); fb != "" {
		slog.Info("bouyomi: primary send failed, trying fallback",
			slog.String("from", preferred), slog.String("to", fb), slog.Any("err", err))
		if fbErr := try(fb); fbErr == nil {
			c.recordSend(fb, "")
			c.mu.Lock()
			c.preferred = fb
			c.mu.Unlock()
			return fb, nil
		}
		c.recordSend("", fb)
	}

	c.mu.Lock()
	c.tcpOK, c.httpOK, c.preferred = false, false, ""
	c.mu.Unlock()
	return "", fmt.Errorf("bouyomi: all methods failed: %w", err)
}

func (c *Client) recordSend(okMethod, errMethod string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch okMethod {
	case MethodTCP:
		c.stats.TCPSends++
	case MethodHTTP:
		c.stats.HTTPSends++
	}
	switch errMethod {
	case MethodTCP:
		c.stats.TCPErrors++
	case MethodHTTP:
		c.stats.HTTPErrors++
	}
}

func (c *Client) sendTCP(ctx context.Context, text string, voiceID int) error {
	c.mu.Lock()
	speed, tone, volume := c.speed, c.tone, c.volume
	c.mu.Unlock()

	pkt, err := talkPacket(text, speed, tone, volume, voiceID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, tcpSendTimeout)
	defer cancel()
	conn, err := c.dial(ctx, c.tcpAddr())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) sendHTTP(ctx context.Context, text string, voiceID int) error {
	c.mu.Lock()
	speed, tone, volume := c.speed, c.tone, c.volume
	c.mu.Unlock()

	params := url.Values{
		"text":   {text},
		"voice":  {strconv.Itoa(voiceID % 10)},
		"volume": {strconv.Itoa(volume)},
		"speed":  {strconv.Itoa(speed)},
		"tone":   {strconv.Itoa(tone)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.talkURL(params), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("talk endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// RunReprobe periodically re-probes a dead connection until ctx is done.
func (c *Client) RunReprobe(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = reprobeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Available() {
				c.Probe(ctx)
			}
		}
	}
}

func (c *Client) tcpAddr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.tcpPort))
}

func (c *Client) talkURL(params url.Values) string {
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(c.host, strconv.Itoa(c.httpPort)),
		Path:     "/talk",
		RawQuery: params.Encode(),
	}
	return u.String()
}

// talkPacket builds the Bouyomi-chan TCP frame: six little-endian uint16
// fields (command, speed, tone, volume, voice, text byte length) followed by
// the Shift-JIS encoded text. Runes Shift-JIS cannot represent are replaced.
func talkPacket(text string, speed, tone, volume, voiceID int) ([]byte, error) {
	encoded, _, err := transform.String(encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()), text)
	if err != nil {
		return nil, fmt.Errorf("shift-jis encode: %w", err)
	}
	textBytes := []byte(encoded)

	var buf bytes.Buffer
	for _, v := range []uint16{
		bouyomiTalkCommand,
		uint16(speed),
		uint16(tone),
		uint16(volume),
		uint16(voiceID % 10),
		uint16(len(textBytes)),
	} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.Write(textBytes)
	return buf.Bytes(), nil
}

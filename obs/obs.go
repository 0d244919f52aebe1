// Package obs is a thin obs-websocket v5 client: Hello/Identify handshake
// with challenge auth, then fire-and-check requests. Connection failure
// leaves the client disconnected and is never fatal to the application;
// effect dispatch works without OBS control.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opRequest         = 6
	opRequestResponse = 7

	rpcVersion     = 1
	dialTimeout    = 5 * time.Second
	requestTimeout = 5 * time.Second
)

// ErrNotConnected is returned by requests made while disconnected.
var ErrNotConnected = errors.New("obs: not connected")

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	ObsWebSocketVersion string `json:"obsWebSocketVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
}

// Client controls one OBS instance. Requests are serialized; the overlay
// only issues occasional scene and hotkey calls.
type Client struct {
	addr     string
	password string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(addr, password string) *Client {
	return &Client{addr: addr, password: password}
}

// Connect dials OBS and completes the Identify handshake.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.addr, nil)
	if err != nil {
		return fmt.Errorf("obs: dial %s: %w", c.addr, err)
	}

	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return fmt.Errorf("obs: read hello: %w", err)
	}
	if hello.Op != opHello {
		_ = conn.Close()
		return fmt.Errorf("obs: expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		_ = conn.Close()
		return fmt.Errorf("obs: parse hello: %w", err)
	}

	id := identifyData{RPCVersion: rpcVersion, EventSubscriptions: 0}
	if hd.Authentication != nil {
		if c.password == "" {
			_ = conn.Close()
			return errors.New("obs: server requires authentication but no password configured")
		}
		id.Authentication = authResponse(c.password, hd.Authentication.Salt, hd.Authentication.Challenge)
	}
	if err := writeOp(conn, opIdentify, id); err != nil {
		_ = conn.Close()
		return fmt.Errorf("obs: send identify: %w", err)
	}

	var identified envelope
	if err := conn.ReadJSON(&identified); err != nil {
		_ = conn.Close()
		return fmt.Errorf("obs: read identified: %w", err)
	}
	if identified.Op != opIdentified {
		_ = conn.Close()
		return fmt.Errorf("obs: identify rejected (op %d)", identified.Op)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// authResponse derives the Identify authentication string:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secretSum := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(secretSum[:])
	authSum := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(authSum[:])
}

// Connected reports whether the handshake has completed.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// TriggerHotkeyByName fires an OBS hotkey binding.
func (c *Client) TriggerHotkeyByName(name string) error {
	return c.request("TriggerHotkeyByName", map[string]any{"hotkeyName": name})
}

// SetCurrentProgramScene switches the active scene.
func (c *Client) SetCurrentProgramScene(scene string) error {
	return c.request("SetCurrentProgramScene", map[string]any{"sceneName": scene})
}

// request serializes one op 6 call and waits for the matching op 7 reply.
// Event frames are not expected (EventSubscriptions is 0); anything with the
// wrong request id fails the call. A transport error drops the connection.
func (c *Client) request(requestType string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	reqID := uuid.NewString()
	req := requestData{RequestType: requestType, RequestID: reqID, RequestData: data}
	deadline := time.Now().Add(requestTimeout)
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	if err := writeOp(c.conn, opRequest, req); err != nil {
		c.dropLocked()
		return fmt.Errorf("obs: send %s: %w", requestType, err)
	}

	var env envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		c.dropLocked()
		return fmt.Errorf("obs: read %s response: %w", requestType, err)
	}
	if env.Op != opRequestResponse {
		return fmt.Errorf("obs: unexpected op %d for %s", env.Op, requestType)
	}
	var resp responseData
	if err := json.Unmarshal(env.D, &resp); err != nil {
		return fmt.Errorf("obs: parse %s response: %w", requestType, err)
	}
	if resp.RequestID != reqID {
		return fmt.Errorf("obs: response id mismatch for %s", requestType)
	}
	if !resp.RequestStatus.Result {
		return fmt.Errorf("obs: %s failed: code %d %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
	}
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func writeOp(conn *websocket.Conn, op int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Op: op, D: raw})
}

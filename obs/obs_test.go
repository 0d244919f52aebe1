package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// fakeOBS speaks just enough of the v5 protocol for the handshake and one
// request per connection.
func fakeOBS(t *testing.T, password string, failRequests bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		salt := "c2FsdA=="
		challenge := "Y2hhbGxlbmdl"
		hello := map[string]any{"obsWebSocketVersion": "5.3.3"}
		if password != "" {
			hello["authentication"] = map[string]string{"challenge": challenge, "salt": salt}
		}
		raw, _ := json.Marshal(hello)
		_ = conn.WriteJSON(envelope{Op: opHello, D: raw})

		var identify envelope
		if err := conn.ReadJSON(&identify); err != nil || identify.Op != opIdentify {
			return
		}
		if password != "" {
			var id identifyData
			_ = json.Unmarshal(identify.D, &id)
			secretSum := sha256.Sum256([]byte(password + salt))
			authSum := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(secretSum[:]) + challenge))
			if id.Authentication != base64.StdEncoding.EncodeToString(authSum[:]) {
				return // no Identified frame: client sees a failed handshake
			}
		}
		_ = conn.WriteJSON(envelope{Op: opIdentified, D: json.RawMessage(`{"negotiatedRpcVersion":1}`)})

		for {
			var req envelope
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			var rd requestData
			_ = json.Unmarshal(req.D, &rd)
			resp := map[string]any{
				"requestType": rd.RequestType,
				"requestId":   rd.RequestID,
				"requestStatus": map[string]any{
					"result": !failRequests, "code": 100, "comment": "",
				},
			}
			if failRequests {
				resp["requestStatus"].(map[string]any)["code"] = 600
			}
			raw, _ := json.Marshal(resp)
			_ = conn.WriteJSON(envelope{Op: opRequestResponse, D: raw})
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectWithAuthAndTrigger(t *testing.T) {
	srv := fakeOBS(t, "hunter2", false)
	defer srv.Close()

	c := NewClient(wsURL(srv), "hunter2")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if !c.Connected() {
		t.Fatal("Connected() = false after handshake")
	}
	if err := c.TriggerHotkeyByName("OBSBasic.StartRecording"); err != nil {
		t.Errorf("TriggerHotkeyByName: %v", err)
	}
	if err := c.SetCurrentProgramScene("Live"); err != nil {
		t.Errorf("SetCurrentProgramScene: %v", err)
	}
}

func TestConnectWithoutPasswordWhenRequired(t *testing.T) {
	srv := fakeOBS(t, "hunter2", false)
	defer srv.Close()

	c := NewClient(wsURL(srv), "")
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect should fail when auth is required and no password is set")
	}
	if c.Connected() {
		t.Error("client should stay disconnected")
	}
}

func TestConnectNoAuth(t *testing.T) {
	srv := fakeOBS(t, "", false)
	defer srv.Close()

	c := NewClient(wsURL(srv), "")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect without auth: %v", err)
	}
	c.Close()
	if err := c.TriggerHotkeyByName("x"); err != ErrNotConnected {
		t.Errorf("request after close = %v, want ErrNotConnected", err)
	}
}

func TestRequestFailureStatus(t *testing.T) {
	srv := fakeOBS(t, "", true)
	defer srv.Close()

	c := NewClient(wsURL(srv), "")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	err := c.SetCurrentProgramScene("Missing")
	if err == nil || !strings.Contains(err.Error(), "code 600") {
		t.Errorf("failed request error = %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/", "")
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect to closed port should fail")
	}
}

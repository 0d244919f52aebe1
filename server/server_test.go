package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyururu/cohost/bridge"
	"github.com/gyururu/cohost/comment"
	"github.com/gyururu/cohost/config"
	"github.com/gyururu/cohost/effects"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/overlay"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	bus := events.NewBus()
	cfg := &config.Config{}
	factory := bridge.NewFactory(bus, cfg)
	manager := bridge.NewManager(factory)
	if err := manager.Register("manual", bridge.KindManual, "", false); err != nil {
		t.Fatalf("register manual: %v", err)
	}

	presets := effects.DefaultSet()
	queue := effects.NewQueue()
	engine := effects.NewEngine(bus, presets, queue)
	board := overlay.NewBoard()
	writer := overlay.NewWriter(board, queue, overlay.DefaultMeta(), t.TempDir(), time.Second)

	return Deps{
		Bus:     bus,
		Manager: manager,
		Engine:  engine,
		Presets: presets,
		Board:   board,
		Writer:  writer,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, Deps) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	deps := testDeps(t)
	srv := httptest.NewServer(NewMux(ctx, deps))
	t.Cleanup(srv.Close)
	return srv, deps
}

func TestEffectPresetsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/effects/presets")
	if err != nil {
		t.Fatalf("get presets: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Presets []effects.Preset `json:"presets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Presets) != 16 {
		t.Fatalf("presets = %d, want 16", len(body.Presets))
	}
	if body.Presets[0].ID != "confetti" {
		t.Errorf("first preset = %q, want confetti", body.Presets[0].ID)
	}
}

func TestEffectTriggerEndpoint(t *testing.T) {
	srv, deps := newTestServer(t)

	resp, err := http.Post(srv.URL+"/effects/trigger", "application/json",
		strings.NewReader(`{"id":"confetti"}`))
	if err != nil {
		t.Fatalf("post trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if deps.Engine.Active() != 1 {
		t.Errorf("active = %d, want 1", deps.Engine.Active())
	}

	resp, err = http.Post(srv.URL+"/effects/trigger", "application/json",
		strings.NewReader(`{"id":"no-such-preset"}`))
	if err != nil {
		t.Fatalf("post unknown trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown preset status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/effects/trigger", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post empty trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", resp.StatusCode)
	}
}

func TestConnectorsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/connectors")
	if err != nil {
		t.Fatalf("get connectors: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Services []bridge.ServiceState `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Services) != 1 || body.Services[0].Name != "manual" {
		t.Fatalf("services = %+v, want one entry named manual", body.Services)
	}
	if body.Services[0].Connected {
		t.Error("manual service should start disconnected")
	}

	// Unknown service maps to 404.
	resp2, err := http.Post(srv.URL+"/connectors/nope/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("post connect: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown service status = %d, want 404", resp2.StatusCode)
	}

	// Disconnecting an already disconnected service is a no-op success.
	resp3, err := http.Post(srv.URL+"/connectors/manual/disconnect", "application/json", nil)
	if err != nil {
		t.Fatalf("post disconnect: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNoContent {
		t.Fatalf("disconnect status = %d, want 204", resp3.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"connectors", "effects", "bus_drops", "overlay_clients"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status response missing %q", key)
		}
	}
	if _, ok := body["obs_connected"]; ok {
		t.Error("obs_connected should be absent when OBS is not configured")
	}
}

func TestOBSSceneUnavailable(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/obs/scene", "application/json",
		strings.NewReader(`{"scene":"BRB"}`))
	if err != nil {
		t.Fatalf("post scene: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestCommentsSSEStream(t *testing.T) {
	srv, deps := newTestServer(t)

	resp, err := http.Get(srv.URL + "/comments/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	ev := comment.New("manual", "test", "u1", "alice", "hello stream", []byte(`{}`))
	deps.Bus.Publish(events.TopicComment, ev)

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(3 * time.Second)
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()

	select {
	case <-deadline:
		t.Fatal("timed out waiting for SSE event")
	case raw := <-lines:
		var got comment.Event
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.UserName != "alice" || got.Message != "hello stream" {
			t.Errorf("event = %+v", got)
		}
	}
}

func TestOverlayWebSocket(t *testing.T) {
	srv, deps := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/overlay"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The first frame is the current snapshot.
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	var snap overlay.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Meta.Canvas.Width != 1920 {
		t.Errorf("canvas width = %d, want 1920", snap.Meta.Canvas.Width)
	}

	// A periodic write fans out to the connected client.
	deps.Board.Push(overlay.RoleViewer, "bob", "hi overlay", "")
	if err := deps.Writer.WriteOnce(); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast frame: %v", err)
	}
	if !bytes.Contains(data, []byte("hi overlay")) {
		t.Errorf("broadcast frame missing pushed message: %s", data)
	}
}

func TestOverlayMessageEndpoint(t *testing.T) {
	srv, deps := newTestServer(t)

	resp, err := http.Post(srv.URL+"/overlay/message", "application/json",
		strings.NewReader(`{"name":"gyururu","body":"starting soon"}`))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	// The role defaults to streamer.
	snap := deps.Board.Snapshot()
	if len(snap.Streamer) != 1 || snap.Streamer[0].Body != "starting soon" {
		t.Fatalf("streamer board = %+v, want the pushed message", snap.Streamer)
	}
	if snap.Streamer[0].Name != "gyururu" {
		t.Errorf("name = %q, want gyururu", snap.Streamer[0].Name)
	}

	resp, err = http.Post(srv.URL+"/overlay/message", "application/json",
		strings.NewReader(`{"role":"moderator","body":"nope"}`))
	if err != nil {
		t.Fatalf("post unknown role: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/overlay/message", "application/json",
		strings.NewReader(`{"role":"streamer"}`))
	if err != nil {
		t.Fatalf("post empty body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", resp.StatusCode)
	}
}

func TestOverlayMessageRequiresAuth(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "sekrit")

	srv, deps := newTestServer(t)

	resp, err := http.Post(srv.URL+"/overlay/message", "application/json",
		strings.NewReader(`{"body":"hi"}`))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	if snap := deps.Board.Snapshot(); len(snap.Streamer) != 0 {
		t.Fatalf("streamer board = %+v, want empty after rejected push", snap.Streamer)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/overlay/message",
		strings.NewReader(`{"body":"hi"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Admin-Token", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("authed status = %d, want 204", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/status", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("missing Access-Control-Allow-Origin header")
	}
}

func TestAdminAuthEnforced(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "sekrit")

	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/effects/trigger", "application/json",
		strings.NewReader(`{"id":"confetti"}`))
	if err != nil {
		t.Fatalf("post trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/effects/trigger",
		strings.NewReader(`{"id":"confetti"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Admin-Token", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("authed status = %d, want 202", resp.StatusCode)
	}

	// Reads stay open without credentials.
	getResp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", getResp.StatusCode)
	}
}

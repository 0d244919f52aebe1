package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gyururu/cohost/events"
)

func TestTalkPacketASCII(t *testing.T) {
	pkt, err := talkPacket("hello", 100, 105, 70, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkt) != 12+5 {
		t.Fatalf("packet length = %d, want 17", len(pkt))
	}
	fields := []struct {
		name string
		want uint16
	}{
		{"command", 0x0001},
		{"speed", 100},
		{"tone", 105},
		{"volume", 70},
		{"voice", 1},
		{"length", 5},
	}
	for i, f := range fields {
		if got := binary.LittleEndian.Uint16(pkt[i*2 : i*2+2]); got != f.want {
			t.Errorf("%s = %d, want %d", f.name, got, f.want)
		}
	}
	if string(pkt[12:]) != "hello" {
		t.Errorf("payload = %q", pkt[12:])
	}
}

func TestTalkPacketShiftJISLength(t *testing.T) {
	// "テスト" is 9 bytes in UTF-8 but 6 in Shift-JIS; the length field
	// must count the encoded bytes.
	pkt, err := talkPacket("テスト", 100, 100, 70, 12)
	if err != nil {
		t.Fatal(err)
	}
	length := binary.LittleEndian.Uint16(pkt[10:12])
	if int(length) != len(pkt)-12 {
		t.Errorf("length field %d does not match payload %d", length, len(pkt)-12)
	}
	if length != 6 {
		t.Errorf("shift-jis length = %d, want 6", length)
	}
	if voice := binary.LittleEndian.Uint16(pkt[8:10]); voice != 2 {
		t.Errorf("voice id should wrap mod 10, got %d", voice)
	}
}

func TestProbePrefersTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("127.0.0.1", port(t, ln.Addr().String()), port(t, srv.Listener.Addr().String()))
	c.Probe(context.Background())

	st := c.Status()
	if !st.TCPAvailable || !st.HTTPAvail || st.Preferred != MethodTCP {
		t.Fatalf("status after probe = %+v", st)
	}
}

func TestSpeakFallsBackToHTTPAndFlips(t *testing.T) {
	var talks []url.Values
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		talks = append(talks, r.URL.Query())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("127.0.0.1", 1, port(t, srv.Listener.Addr().String()))
	c.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	c.tcpOK, c.httpOK, c.preferred = true, true, MethodTCP

	method, err := c.Speak(context.Background(), "こんにちは", 0)
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if method != MethodHTTP {
		t.Errorf("method = %s, want http", method)
	}
	if st := c.Status(); st.Preferred != MethodHTTP || st.TCPErrors != 1 || st.HTTPSends != 1 {
		t.Errorf("status after fallback = %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(talks) != 1 || talks[0].Get("text") != "こんにちは" || talks[0].Get("volume") != "70" {
		t.Errorf("talk request = %v", talks)
	}
}

func TestSpeakAllMethodsFailResetsAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("127.0.0.1", 1, port(t, srv.Listener.Addr().String()))
	c.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	c.tcpOK, c.httpOK, c.preferred = true, true, MethodTCP

	if _, err := c.Speak(context.Background(), "test", 0); err == nil {
		t.Fatal("Speak should fail when both methods fail")
	}
	if c.Available() {
		t.Error("availability should reset after total failure")
	}
	if _, err := c.Speak(context.Background(), "test", 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("speak while unavailable = %v, want ErrUnavailable", err)
	}
}

func TestSendTCPWritesPacket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		got <- buf[:n]
	}()

	c := NewClient("127.0.0.1", port(t, ln.Addr().String()), 1)
	if err := c.sendTCP(context.Background(), "hi", 0); err != nil {
		t.Fatalf("sendTCP: %v", err)
	}

	select {
	case pkt := <-got:
		if len(pkt) != 14 || string(pkt[12:]) != "hi" {
			t.Errorf("received packet = %v", pkt)
		}
		if cmd := binary.LittleEndian.Uint16(pkt[0:2]); cmd != 0x0001 {
			t.Errorf("command = %#x", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the packet")
	}
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string, voiceID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.spoken = append(f.spoken, text)
	return MethodTCP, nil
}

func TestRunnerDrainsQueueInOrder(t *testing.T) {
	bus := events.NewBus()
	sp := &fakeSpeaker{}
	r := NewRunner(bus, sp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spoken, unsub := bus.Subscribe(events.TopicTTSSpoken)
	defer unsub()

	r.Start(ctx)
	bus.Publish(events.TopicTTSRequest, events.TTSRequest{Text: "first", Role: "ai"})
	bus.Publish(events.TopicTTSRequest, events.TTSRequest{Text: "second", Role: "ai"})
	bus.Publish(events.TopicTTSRequest, events.TTSRequest{Text: "   ", Role: "ai"}) // dropped

	for i := 0; i < 2; i++ {
		select {
		case msg := <-spoken:
			ev := msg.(events.TTSSpoken)
			if !ev.Success || ev.Method != MethodTCP {
				t.Errorf("spoken event = %+v", ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for spoken event %d", i)
		}
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.spoken) != 2 || sp.spoken[0] != "first" || sp.spoken[1] != "second" {
		t.Errorf("spoken order = %v", sp.spoken)
	}
}

func TestRunnerReportsFailure(t *testing.T) {
	bus := events.NewBus()
	sp := &fakeSpeaker{err: errors.New("bouyomi down")}
	r := NewRunner(bus, sp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spoken, unsub := bus.Subscribe(events.TopicTTSSpoken)
	defer unsub()

	r.Start(ctx)
	r.Enqueue(events.TTSRequest{Text: "hello"})

	select {
	case msg := <-spoken:
		ev := msg.(events.TTSSpoken)
		if ev.Success || ev.Error == "" {
			t.Errorf("failure event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure event")
	}
}

func port(t *testing.T, addr string) int {
	t.Helper()
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

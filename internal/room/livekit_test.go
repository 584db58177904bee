package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawsandsuds/frontdesk/internal/protocol"
)

type bridgeServer struct {
	t  *testing.T
	mu sync.Mutex

	upgrader websocket.Upgrader
	tokens   []string
	received []protocol.AudioFrame
	send     chan any
}

func newBridgeServer(t *testing.T) (*bridgeServer, *httptest.Server) {
	b := &bridgeServer{t: t, send: make(chan any, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rtc" {
			http.NotFound(w, r)
			return
		}
		token := r.URL.Query().Get("access_token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.tokens = append(b.tokens, token)
		b.mu.Unlock()

		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for msg := range b.send {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}()

		for {
			var frame protocol.AudioFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			b.mu.Lock()
			b.received = append(b.received, frame)
			b.mu.Unlock()
		}
	}))
	return b, srv
}

func TestLiveKitConnectPublishesToken(t *testing.T) {
	bridge, srv := newBridgeServer(t)
	defer srv.Close()

	r := NewLiveKit(srv.URL, "jwt-token", "lobby")
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer r.Disconnect()

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if len(bridge.tokens) != 1 || bridge.tokens[0] != "jwt-token" {
		t.Fatalf("server saw tokens %v, want [jwt-token]", bridge.tokens)
	}
}

func TestLiveKitPublishAndReceive(t *testing.T) {
	bridge, srv := newBridgeServer(t)
	defer srv.Close()

	r := NewLiveKit(srv.URL, "jwt-token", "lobby")
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer r.Disconnect()

	if err := r.Publish(context.Background(), Frame{PCM16: []int16{1, -2, 3}, SampleRate: 16000}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		bridge.mu.Lock()
		n := len(bridge.received)
		bridge.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("server never received published frame")
		case <-time.After(10 * time.Millisecond):
		}
	}

	bridge.send <- protocol.AudioFrame{
		Type:        protocol.TypeAudioFrame,
		Room:        "lobby",
		Seq:         1,
		PCM16Base64: encodePCM16([]int16{7, 8}),
		SampleRate:  16000,
	}

	select {
	case frame, ok := <-r.AudioIn():
		if !ok {
			t.Fatalf("audio channel closed before delivering frame")
		}
		if len(frame.PCM16) != 2 || frame.PCM16[0] != 7 || frame.PCM16[1] != 8 {
			t.Fatalf("frame = %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound frame")
	}
}

func TestLiveKitAudioInClosesOnHangup(t *testing.T) {
	bridge, srv := newBridgeServer(t)
	defer srv.Close()

	r := NewLiveKit(srv.URL, "jwt-token", "lobby")
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	bridge.send <- protocol.RoomEvent{Type: protocol.TypeRoomEvent, Room: "lobby", Event: "room_closed"}

	select {
	case _, ok := <-r.AudioIn():
		if ok {
			t.Fatalf("expected closed channel after room_closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audio channel never closed after room_closed")
	}
}

func TestLiveKitConnectRejectsBadScheme(t *testing.T) {
	r := NewLiveKit("ftp://example.com", "jwt-token", "lobby")
	err := r.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Fatalf("Connect() error = %v, want unsupported scheme", err)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out, err := decodePCM16(encodePCM16(in))
	if err != nil {
		t.Fatalf("decodePCM16 error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

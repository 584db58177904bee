package room

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawsandsuds/frontdesk/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
)

// LiveKit joins a room through the LiveKit signaling endpoint and relays
// audio frames over the websocket media bridge.
type LiveKit struct {
	serverURL string
	token     string
	name      string

	mu     sync.Mutex
	conn   *websocket.Conn
	in     chan Frame
	seq    int
	closed bool
}

func NewLiveKit(serverURL, accessToken, roomName string) *LiveKit {
	return &LiveKit{
		serverURL: serverURL,
		token:     accessToken,
		name:      roomName,
		in:        make(chan Frame, 64),
	}
}

func (r *LiveKit) Name() string { return r.name }

// Connect dials <server>/rtc?access_token=<token>, mapping http(s) schemes
// to ws(s). Dial or auth failures surface to the caller; the framework's job
// supervisor owns retries.
func (r *LiveKit) Connect(ctx context.Context) error {
	u, err := url.Parse(r.serverURL)
	if err != nil {
		return fmt.Errorf("room: invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return fmt.Errorf("room: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/rtc"
	q := u.Query()
	q.Set("access_token", r.token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("room: dial %s: status %d: %w", r.name, resp.StatusCode, err)
		}
		return fmt.Errorf("room: dial %s: %w", r.name, err)
	}

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	go r.readLoop(conn)
	return nil
}

func (r *LiveKit) AudioIn() <-chan Frame { return r.in }

func (r *LiveKit) Publish(ctx context.Context, f Frame) error {
	r.mu.Lock()
	conn := r.conn
	if conn == nil || r.closed {
		r.mu.Unlock()
		return fmt.Errorf("room: %s not connected", r.name)
	}
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	msg := protocol.AudioFrame{
		Type:        protocol.TypeAudioFrame,
		Room:        r.name,
		Seq:         seq,
		PCM16Base64: encodePCM16(f.PCM16),
		SampleRate:  f.SampleRate,
		TSMs:        time.Now().UnixMilli(),
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	// Writers are serialized through the room mutex path above only for seq;
	// actual writes happen from the single pipeline goroutine.
	return conn.WriteJSON(msg)
}

func (r *LiveKit) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.conn != nil {
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return r.conn.Close()
	}
	close(r.in)
	return nil
}

func (r *LiveKit) readLoop(conn *websocket.Conn) {
	// The read loop owns closing the inbound channel: whether the remote
	// hung up or Disconnect closed the conn, ReadMessage errors and we land
	// here exactly once.
	defer func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		_ = conn.Close()
		close(r.in)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseServerMessage(data)
		if err != nil {
			continue
		}
		switch msg := parsed.(type) {
		case protocol.AudioFrame:
			pcm, err := decodePCM16(msg.PCM16Base64)
			if err != nil {
				continue
			}
			frame := Frame{PCM16: pcm, SampleRate: msg.SampleRate, TS: time.UnixMilli(msg.TSMs)}
			select {
			case r.in <- frame:
			default:
				// The pipeline fell behind; drop rather than stall the socket.
			}
		case protocol.RoomEvent:
			if msg.Event == "room_closed" || msg.Event == "participant_left" {
				return
			}
		case protocol.ErrorEvent:
			if !msg.Retryable {
				return
			}
		}
	}
}

func encodePCM16(samples []int16) string {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodePCM16(encoded string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

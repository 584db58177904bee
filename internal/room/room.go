// Package room abstracts the realtime media room the agent joins for a call.
// Audio capture/playback and the WebRTC media plane belong to LiveKit; the
// agent only sees PCM frames flowing through a connected Room.
package room

import (
	"context"
	"time"
)

// Frame is one chunk of 16-bit PCM audio.
type Frame struct {
	PCM16      []int16
	SampleRate int
	TS         time.Time
}

// Room is the narrow surface the pipeline drives. Connect must be called
// before AudioIn or Publish; Disconnect is idempotent.
type Room interface {
	Connect(ctx context.Context) error
	Name() string
	// AudioIn delivers caller audio. The channel closes when the room
	// disconnects or the remote side hangs up.
	AudioIn() <-chan Frame
	// Publish sends one frame of agent speech to the room.
	Publish(ctx context.Context, f Frame) error
	Disconnect() error
}

// Package protocol defines the JSON envelopes exchanged with the media
// bridge websocket: audio frames in both directions plus room and error
// events. The RTC media plane itself lives in LiveKit; this is only the
// agent-side signaling/frame relay.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeAudioFrame MessageType = "audio_frame"
	TypeRoomEvent  MessageType = "room_event"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// AudioFrame carries one PCM frame. Inbound frames are caller audio;
// outbound frames are the agent's synthesized speech.
type AudioFrame struct {
	Type        MessageType `json:"type"`
	Room        string      `json:"room"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

// RoomEvent reports participant lifecycle changes from the server.
type RoomEvent struct {
	Type        MessageType `json:"type"`
	Room        string      `json:"room"`
	Event       string      `json:"event"`
	Participant string      `json:"participant,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Room      string      `json:"room"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseServerMessage decodes one inbound websocket payload.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAudioFrame:
		var msg AudioFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid audio_frame")
		}
		return msg, nil
	case TypeRoomEvent:
		var msg RoomEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Event == "" {
			return nil, errors.New("invalid room_event")
		}
		return msg, nil
	case TypeErrorEvent:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

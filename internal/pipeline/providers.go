// Package pipeline is the narrow lifecycle facade over the voice pipeline:
// per-job sessions built from provider/model identifiers, a metrics event
// stream, and a turn loop wiring room audio through VAD, STT, the language
// model and TTS. Model inference itself runs in the external plugin gateway.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pawsandsuds/frontdesk/internal/room"
)

// Transcript is one committed STT result.
type Transcript struct {
	Text          string
	Confidence    float64
	AudioDuration time.Duration
}

// STT converts a finished utterance into text.
type STT interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is one LLM reply with its usage counts.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// LLM produces the next assistant reply from the conversation so far.
type LLM interface {
	Complete(ctx context.Context, system string, history []ChatMessage) (Completion, error)
}

// Synthesis is the audio for one spoken reply.
type Synthesis struct {
	Frames     []room.Frame
	Characters int
}

// TTS renders reply text into audio frames.
type TTS interface {
	Synthesize(ctx context.Context, text, voice string) (Synthesis, error)
}

// Providers bundles the three resolved pipeline stages.
type Providers struct {
	STT STT
	LLM LLM
	TTS TTS
}

// ResolveProviders maps provider/model identifiers (e.g. "deepgram/nova-3")
// to stage implementations. The "mock" provider family is built in; every
// other provider is served by the external inference gateway.
func ResolveProviders(gatewayURL, sttModel, llmModel, ttsModel string) (Providers, error) {
	var p Providers

	for _, id := range []string{sttModel, llmModel, ttsModel} {
		if _, _, err := splitModelID(id); err != nil {
			return Providers{}, err
		}
	}

	gw := newGatewayClient(gatewayURL)

	if provider, _, _ := splitModelID(sttModel); provider == "mock" {
		p.STT = NewMockSTT(nil)
	} else {
		p.STT = gw.stt(sttModel)
	}
	if provider, _, _ := splitModelID(llmModel); provider == "mock" {
		p.LLM = NewMockLLM(nil)
	} else {
		p.LLM = gw.llm(llmModel)
	}
	if provider, _, _ := splitModelID(ttsModel); provider == "mock" {
		p.TTS = NewMockTTS(16000)
	} else {
		p.TTS = gw.tts(ttsModel)
	}
	return p, nil
}

func splitModelID(id string) (provider, model string, err error) {
	parts := strings.SplitN(strings.TrimSpace(id), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("pipeline: invalid model id %q, want provider/model", id)
	}
	return parts[0], parts[1], nil
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pawsandsuds/frontdesk/internal/room"
)

// gatewayClient talks to the inference gateway that hosts the actual vendor
// plugins (STT, LLM, TTS). One request per finished stage; streaming stays
// inside the gateway.
type gatewayClient struct {
	baseURL string
	client  *http.Client
}

func newGatewayClient(baseURL string) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (g *gatewayClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("gateway status %d: %s", res.StatusCode, string(body))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type gatewaySTT struct {
	gw    *gatewayClient
	model string
}

func (g *gatewayClient) stt(model string) STT { return &gatewaySTT{gw: g, model: model} }

func (s *gatewaySTT) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	req := struct {
		Model       string `json:"model"`
		PCM16Base64 string `json:"pcm16_base64"`
		SampleRate  int    `json:"sample_rate"`
	}{s.model, encodePCM16(pcm), sampleRate}

	var resp struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := s.gw.post(ctx, "/v1/stt", req, &resp); err != nil {
		return Transcript{}, fmt.Errorf("stt %s: %w", s.model, err)
	}
	audioDur := time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate)
	return Transcript{Text: resp.Text, Confidence: resp.Confidence, AudioDuration: audioDur}, nil
}

type gatewayLLM struct {
	gw    *gatewayClient
	model string
}

func (g *gatewayClient) llm(model string) LLM { return &gatewayLLM{gw: g, model: model} }

func (l *gatewayLLM) Complete(ctx context.Context, system string, history []ChatMessage) (Completion, error) {
	req := struct {
		Model    string        `json:"model"`
		System   string        `json:"system"`
		Messages []ChatMessage `json:"messages"`
	}{l.model, system, history}

	var resp struct {
		Text         string `json:"text"`
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
	}
	if err := l.gw.post(ctx, "/v1/chat", req, &resp); err != nil {
		return Completion{}, fmt.Errorf("llm %s: %w", l.model, err)
	}
	return Completion{Text: resp.Text, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}, nil
}

type gatewayTTS struct {
	gw    *gatewayClient
	model string
}

func (g *gatewayClient) tts(model string) TTS { return &gatewayTTS{gw: g, model: model} }

func (t *gatewayTTS) Synthesize(ctx context.Context, text, voice string) (Synthesis, error) {
	req := struct {
		Model string `json:"model"`
		Voice string `json:"voice"`
		Text  string `json:"text"`
	}{t.model, voice, text}

	var resp struct {
		PCM16Base64 string `json:"pcm16_base64"`
		SampleRate  int    `json:"sample_rate"`
	}
	if err := t.gw.post(ctx, "/v1/tts", req, &resp); err != nil {
		return Synthesis{}, fmt.Errorf("tts %s: %w", t.model, err)
	}
	pcm, err := decodePCM16(resp.PCM16Base64)
	if err != nil {
		return Synthesis{}, fmt.Errorf("tts %s: bad audio payload: %w", t.model, err)
	}
	if resp.SampleRate <= 0 {
		return Synthesis{}, fmt.Errorf("tts %s: bad sample rate %d", t.model, resp.SampleRate)
	}
	return Synthesis{
		Frames:     []room.Frame{{PCM16: pcm, SampleRate: resp.SampleRate, TS: time.Now()}},
		Characters: len(text),
	}, nil
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

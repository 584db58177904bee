package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pawsandsuds/frontdesk/internal/room"
)

// MockSTT returns scripted transcripts, one per call, in order. With a nil
// script every call yields a fixed utterance.
type MockSTT struct {
	mu     sync.Mutex
	script []string
	calls  int
}

func NewMockSTT(script []string) *MockSTT {
	return &MockSTT{script: script}
}

func (m *MockSTT) Transcribe(_ context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text := "simulated caller utterance"
	if m.calls < len(m.script) {
		text = m.script[m.calls]
	}
	m.calls++
	return Transcript{
		Text:          text,
		Confidence:    0.9,
		AudioDuration: time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate),
	}, nil
}

func (m *MockSTT) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockLLM returns scripted replies and records every request it sees.
type MockLLM struct {
	mu       sync.Mutex
	script   []string
	calls    int
	requests [][]ChatMessage
	systems  []string
}

func NewMockLLM(script []string) *MockLLM {
	return &MockLLM{script: script}
}

func (m *MockLLM) Complete(_ context.Context, system string, history []ChatMessage) (Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text := "Thanks for calling Paws and Suds, how can I help?"
	if m.calls < len(m.script) {
		text = m.script[m.calls]
	}
	m.calls++
	snapshot := make([]ChatMessage, len(history))
	copy(snapshot, history)
	m.requests = append(m.requests, snapshot)
	m.systems = append(m.systems, system)
	return Completion{Text: text, InputTokens: 20 + len(history), OutputTokens: len(text) / 4}, nil
}

func (m *MockLLM) Requests() [][]ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]ChatMessage, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockLLM) Systems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.systems))
	copy(out, m.systems)
	return out
}

// MockTTS renders silence proportional to the text length.
type MockTTS struct {
	sampleRate int
	mu         sync.Mutex
	calls      int
}

func NewMockTTS(sampleRate int) *MockTTS {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &MockTTS{sampleRate: sampleRate}
}

func (m *MockTTS) Synthesize(_ context.Context, text, _ string) (Synthesis, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	// ~60ms of audio per character keeps durations roughly speech-shaped.
	samples := len(text) * m.sampleRate * 60 / 1000
	if samples == 0 {
		samples = m.sampleRate / 100
	}
	return Synthesis{
		Frames:     []room.Frame{{PCM16: make([]int16, samples), SampleRate: m.sampleRate, TS: time.Now()}},
		Characters: len(text),
	}, nil
}

func (m *MockTTS) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

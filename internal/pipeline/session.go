package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pawsandsuds/frontdesk/internal/persona"
	"github.com/pawsandsuds/frontdesk/internal/room"
	"github.com/pawsandsuds/frontdesk/internal/vad"
)

var (
	ErrNotStarted     = errors.New("pipeline: session not started")
	ErrAlreadyStarted = errors.New("pipeline: session already started")
	ErrClosed         = errors.New("pipeline: session closed")
)

// RoomInputOptions configure the room's audio input. Noise cancellation is
// applied by the media server; the flag here selects it for the session.
type RoomInputOptions struct {
	NoiseCancellation bool
}

// SessionOptions fix a session's providers and turn-taking behavior. Created
// once per job and owned by that job's session.
type SessionOptions struct {
	Providers Providers
	TTSVoice  string

	// VAD is the process-wide prewarmed detector, shared read-only across
	// concurrent sessions.
	VAD *vad.Detector

	// Turn detection: after the detector reports end of speech, wait this
	// long before committing the turn. PreemptiveGeneration skips the wait
	// and starts generating as soon as speech ends.
	MinEndpointingDelay  time.Duration
	PreemptiveGeneration bool
}

// Session is one active voice pipeline bound to a single room/call.
type Session struct {
	opts  SessionOptions
	agent persona.Definition
	rm    room.Room
	input RoomInputOptions

	events chan MetricsEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	history []ChatMessage
	started bool
	closed  bool
	ops     sync.WaitGroup

	speakMu sync.Mutex
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Providers.STT == nil || opts.Providers.LLM == nil || opts.Providers.TTS == nil {
		return nil, errors.New("pipeline: all three providers are required")
	}
	if opts.VAD == nil {
		return nil, errors.New("pipeline: vad detector is required")
	}
	if opts.MinEndpointingDelay < 0 {
		return nil, errors.New("pipeline: negative endpointing delay")
	}
	return &Session{
		opts:   opts,
		events: make(chan MetricsEvent, 64),
		done:   make(chan struct{}),
	}, nil
}

// Events streams one MetricsEvent per pipeline stage. The channel closes
// when the session closes; events are dropped rather than ever blocking the
// pipeline.
func (s *Session) Events() <-chan MetricsEvent { return s.events }

// Done closes when the turn loop has exited: the room's audio channel closed
// (caller hung up) or the session was cancelled.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start binds the session to an agent persona and a room and launches the
// turn loop. It does not connect the room; callers connect afterwards, and
// any connect error propagates to them.
func (s *Session) Start(ctx context.Context, agent persona.Definition, rm room.Room, input RoomInputOptions) error {
	if rm == nil {
		return errors.New("pipeline: room is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.agent = agent
	s.rm = rm
	s.input = input
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)

	log.Printf("session started: room=%s voice=%s noise_cancellation=%v preemptive=%v",
		rm.Name(), s.opts.TTSVoice, input.NoiseCancellation, s.opts.PreemptiveGeneration)
	return nil
}

// GenerateReply asks the language model for one reply following the given
// instructions and speaks it into the room.
func (s *Session) GenerateReply(ctx context.Context, instructions string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.ops.Add(1)
	s.mu.Unlock()
	defer s.ops.Done()

	return s.reply(ctx, instructions)
}

// Close stops the turn loop, disconnects the room and closes the event
// stream. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if started {
		s.cancel()
		<-s.done
		_ = s.rm.Disconnect()
	}
	s.ops.Wait()
	close(s.events)
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	stream := s.opts.VAD.NewStream()
	sampleRate := s.opts.VAD.SampleRate()
	var buf []int16

	var endpoint *time.Timer
	var endpointC <-chan time.Time
	stopEndpoint := func() {
		if endpoint != nil {
			endpoint.Stop()
			endpoint = nil
			endpointC = nil
		}
	}
	defer stopEndpoint()

	audioIn := s.rm.AudioIn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-endpointC:
			endpoint = nil
			endpointC = nil
			s.respond(ctx, buf, sampleRate)
			buf = nil
		case f, ok := <-audioIn:
			if !ok {
				return
			}
			if f.SampleRate > 0 {
				sampleRate = f.SampleRate
			}
			buf = append(buf, f.PCM16...)
			for _, ev := range stream.Push(f.PCM16) {
				switch ev.Type {
				case vad.EventSpeechStart:
					// The caller kept talking; the pending turn is void.
					stopEndpoint()
				case vad.EventSpeechEnd:
					s.emit(MetricsEvent{
						Kind:          MetricsEOU,
						Duration:      s.opts.MinEndpointingDelay,
						AudioDuration: ev.SpeechDuration,
					})
					if s.opts.PreemptiveGeneration || s.opts.MinEndpointingDelay == 0 {
						s.respond(ctx, buf, sampleRate)
						buf = nil
						continue
					}
					stopEndpoint()
					endpoint = time.NewTimer(s.opts.MinEndpointingDelay)
					endpointC = endpoint.C
				}
			}
		}
	}
}

// respond commits one caller turn: transcribe, generate, speak. Called only
// from the run goroutine.
func (s *Session) respond(ctx context.Context, pcm []int16, sampleRate int) {
	if len(pcm) == 0 {
		return
	}

	t0 := time.Now()
	transcript, err := s.opts.Providers.STT.Transcribe(ctx, pcm, sampleRate)
	s.emit(MetricsEvent{
		Kind:          MetricsSTT,
		Duration:      time.Since(t0),
		AudioDuration: transcript.AudioDuration,
		Failed:        err != nil,
	})
	if err != nil {
		log.Printf("session %s: stt error: %v", s.rm.Name(), err)
		return
	}
	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		return
	}

	s.mu.Lock()
	s.history = append(s.history, ChatMessage{Role: "user", Content: text})
	s.mu.Unlock()

	if err := s.reply(ctx, ""); err != nil {
		log.Printf("session %s: reply error: %v", s.rm.Name(), err)
	}
}

func (s *Session) reply(ctx context.Context, instructions string) error {
	s.mu.Lock()
	history := make([]ChatMessage, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	system := s.agent.Instructions
	if instructions != "" {
		system = system + "\n\n" + instructions
	}

	t0 := time.Now()
	completion, err := s.opts.Providers.LLM.Complete(ctx, system, history)
	elapsed := time.Since(t0)
	s.emit(MetricsEvent{
		Kind:         MetricsLLM,
		Duration:     elapsed,
		TTFB:         elapsed,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Failed:       err != nil,
	})
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	replyText := strings.TrimSpace(completion.Text)
	if replyText == "" {
		return nil
	}

	s.mu.Lock()
	s.history = append(s.history, ChatMessage{Role: "assistant", Content: replyText})
	s.mu.Unlock()

	return s.speak(ctx, replyText)
}

func (s *Session) speak(ctx context.Context, text string) error {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	t0 := time.Now()
	synthesis, err := s.opts.Providers.TTS.Synthesize(ctx, text, s.opts.TTSVoice)
	s.emit(MetricsEvent{
		Kind:       MetricsTTS,
		Duration:   time.Since(t0),
		Characters: synthesis.Characters,
		Failed:     err != nil,
	})
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	for _, frame := range synthesis.Frames {
		if err := s.rm.Publish(ctx, frame); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}

func (s *Session) emit(ev MetricsEvent) {
	ev.Timestamp = time.Now()
	select {
	case s.events <- ev:
	default:
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

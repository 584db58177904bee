// Package vad provides a lightweight energy-based voice activity detector.
//
// Load is intentionally the expensive step: it builds the shared lookup
// tables once per worker process, and the returned Detector is read-only
// afterwards so concurrent sessions can share it. Per-session state lives in
// the streams.
package vad

import (
	"math"
	"sync"
	"time"
)

type EventType string

const (
	EventSpeechStart EventType = "speech_start"
	EventSpeechEnd   EventType = "speech_end"
)

type Event struct {
	Type EventType
	// Energy of the frame that triggered the transition, in [0, 1].
	Energy float64
	// Duration of the speech segment, set on EventSpeechEnd.
	SpeechDuration time.Duration
}

// Options tune the detector. Zero values select the defaults below.
type Options struct {
	SampleRate int
	// Frames at or above this normalized energy count as speech.
	ActivationThreshold float64
	// Speech must persist this long before a speech_start fires.
	MinSpeechDuration time.Duration
	// Silence must persist this long before a speech_end fires.
	MinSilenceDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.ActivationThreshold <= 0 {
		o.ActivationThreshold = 0.012
	}
	if o.MinSpeechDuration <= 0 {
		o.MinSpeechDuration = 60 * time.Millisecond
	}
	if o.MinSilenceDuration <= 0 {
		o.MinSilenceDuration = 350 * time.Millisecond
	}
	return o
}

// Detector holds the immutable, shareable part of the VAD.
type Detector struct {
	opts Options
	// Precomputed sample -> normalized energy table for int16 magnitudes.
	energyTable []float64
}

// Load builds a Detector. Call once per process and reuse across sessions.
func Load() *Detector {
	return LoadWithOptions(Options{})
}

func LoadWithOptions(opts Options) *Detector {
	opts = opts.withDefaults()
	table := make([]float64, 1<<15+1)
	for i := range table {
		v := float64(i) / float64(1<<15)
		table[i] = v * v
	}
	return &Detector{opts: opts, energyTable: table}
}

func (d *Detector) SampleRate() int { return d.opts.SampleRate }

// Stream tracks one session's speech/silence state machine. Not safe for
// concurrent use; each session owns its own stream.
type Stream struct {
	d *Detector

	mu            sync.Mutex
	inSpeech      bool
	speechRun     time.Duration
	silenceRun    time.Duration
	speechStarted time.Duration
	clock         time.Duration
}

func (d *Detector) NewStream() *Stream {
	return &Stream{d: d}
}

// Push feeds one frame of 16-bit PCM samples and returns any state
// transitions it caused. Hangover smoothing suppresses flicker: short energy
// dips inside speech and short bursts inside silence do not transition.
func (s *Stream) Push(samples []int16) []Event {
	if len(samples) == 0 {
		return nil
	}

	frameDur := time.Duration(len(samples)) * time.Second / time.Duration(s.d.opts.SampleRate)
	energy := s.d.frameEnergy(samples)
	active := energy >= s.d.opts.ActivationThreshold

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock += frameDur

	var events []Event
	if active {
		s.speechRun += frameDur
		s.silenceRun = 0
		if !s.inSpeech && s.speechRun >= s.d.opts.MinSpeechDuration {
			s.inSpeech = true
			s.speechStarted = s.clock - s.speechRun
			events = append(events, Event{Type: EventSpeechStart, Energy: energy})
		}
	} else {
		s.silenceRun += frameDur
		s.speechRun = 0
		if s.inSpeech && s.silenceRun >= s.d.opts.MinSilenceDuration {
			s.inSpeech = false
			events = append(events, Event{
				Type:           EventSpeechEnd,
				Energy:         energy,
				SpeechDuration: s.clock - s.silenceRun - s.speechStarted,
			})
		}
	}
	return events
}

// InSpeech reports whether the stream currently sits inside a speech segment.
func (s *Stream) InSpeech() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inSpeech
}

// SilenceFor returns how long the stream has observed continuous silence.
func (s *Stream) SilenceFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silenceRun
}

func (d *Detector) frameEnergy(samples []int16) float64 {
	var sum float64
	for _, sample := range samples {
		mag := int(sample)
		if mag < 0 {
			mag = -mag
		}
		sum += d.energyTable[mag]
	}
	return math.Sqrt(sum / float64(len(samples)))
}

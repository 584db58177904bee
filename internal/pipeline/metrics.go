package pipeline

import "time"

// MetricsKind tags one pipeline stage measurement.
type MetricsKind string

const (
	MetricsSTT MetricsKind = "stt"
	MetricsLLM MetricsKind = "llm"
	MetricsTTS MetricsKind = "tts"
	// MetricsEOU marks an end-of-utterance decision by the turn detector.
	MetricsEOU MetricsKind = "eou"
)

// MetricsEvent is emitted on the session's event stream for every stage.
// Fields are populated per kind: tokens for llm, characters for tts, audio
// duration for stt and eou.
type MetricsEvent struct {
	Kind          MetricsKind
	Duration      time.Duration
	TTFB          time.Duration
	InputTokens   int
	OutputTokens  int
	Characters    int
	AudioDuration time.Duration
	Failed        bool
	Timestamp     time.Time
}

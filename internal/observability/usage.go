package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// UsageEvent is one pipeline metrics event, normalized for accumulation.
type UsageEvent struct {
	Kind          string
	Duration      time.Duration
	TTFB          time.Duration
	InputTokens   int
	OutputTokens  int
	Characters    int
	AudioDuration time.Duration
}

// StageUsage aggregates one event kind.
type StageUsage struct {
	Kind    string
	Count   int
	TotalMS float64
	P50MS   float64
	P95MS   float64
}

// UsageSummary is read once at session shutdown and never persisted.
type UsageSummary struct {
	Events        int
	InputTokens   int
	OutputTokens  int
	TTSCharacters int
	STTAudio      time.Duration
	Stages        []StageUsage
}

func (s UsageSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "usage: events=%d llm_tokens=%d/%d tts_chars=%d stt_audio=%s",
		s.Events, s.InputTokens, s.OutputTokens, s.TTSCharacters, s.STTAudio.Round(time.Millisecond))
	for _, st := range s.Stages {
		fmt.Fprintf(&b, " %s{n=%d p50=%.0fms p95=%.0fms}", st.Kind, st.Count, st.P50MS, st.P95MS)
	}
	return b.String()
}

// UsageCollector accumulates pipeline metrics events for one session.
type UsageCollector struct {
	mu         sync.Mutex
	maxSamples int
	events     int
	inTokens   int
	outTokens  int
	characters int
	sttAudio   time.Duration
	stages     map[string]*stageBuffer
}

type stageBuffer struct {
	values  []float64
	next    int
	filled  bool
	count   int
	totalMS float64
}

func NewUsageCollector() *UsageCollector {
	return &UsageCollector{
		maxSamples: 256,
		stages:     make(map[string]*stageBuffer),
	}
}

// Collect appends one event. Safe for concurrent use.
func (c *UsageCollector) Collect(ev UsageEvent) {
	if ev.Kind == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events++
	c.inTokens += ev.InputTokens
	c.outTokens += ev.OutputTokens
	c.characters += ev.Characters
	c.sttAudio += ev.AudioDuration

	buf, ok := c.stages[ev.Kind]
	if !ok {
		buf = &stageBuffer{values: make([]float64, c.maxSamples)}
		c.stages[ev.Kind] = buf
	}
	ms := float64(ev.Duration.Milliseconds())
	buf.count++
	buf.totalMS += ms
	buf.values[buf.next] = ms
	buf.next++
	if buf.next >= len(buf.values) {
		buf.next = 0
		buf.filled = true
	}
}

// Summary snapshots the accumulated usage.
func (c *UsageCollector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.stages))
	for k := range c.stages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stages := make([]StageUsage, 0, len(keys))
	for _, kind := range keys {
		buf := c.stages[kind]
		n := buf.next
		if buf.filled {
			n = len(buf.values)
		}
		if n == 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, buf.values[:n])
		sort.Float64s(samples)

		stages = append(stages, StageUsage{
			Kind:    kind,
			Count:   buf.count,
			TotalMS: buf.totalMS,
			P50MS:   quantile(samples, 0.50),
			P95MS:   quantile(samples, 0.95),
		})
	}

	return UsageSummary{
		Events:        c.events,
		InputTokens:   c.inTokens,
		OutputTokens:  c.outTokens,
		TTSCharacters: c.characters,
		STTAudio:      c.sttAudio,
		Stages:        stages,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

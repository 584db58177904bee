// Package receptionist wires the Paws & Suds phone persona into the agent
// worker: prewarm caches the voice-activity detector, the entrypoint builds a
// pipeline session for the dispatched call and issues the opening greeting.
package receptionist

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pawsandsuds/frontdesk/internal/agent"
	"github.com/pawsandsuds/frontdesk/internal/config"
	"github.com/pawsandsuds/frontdesk/internal/observability"
	"github.com/pawsandsuds/frontdesk/internal/persona"
	"github.com/pawsandsuds/frontdesk/internal/pipeline"
	"github.com/pawsandsuds/frontdesk/internal/vad"
)

const detectorKey = "vad.detector"

// Receptionist holds the per-process pieces shared by every call.
type Receptionist struct {
	cfg     config.Config
	metrics *observability.Metrics
}

func New(cfg config.Config, metrics *observability.Metrics) *Receptionist {
	return &Receptionist{cfg: cfg, metrics: metrics}
}

// Prewarm loads the voice-activity detector once per worker process. Every
// concurrent job shares the same read-only detector.
func (rc *Receptionist) Prewarm(proc *agent.Process) error {
	proc.Set(detectorKey, vad.Load())
	return nil
}

// Entrypoint runs one call end to end: resolve providers, start the pipeline
// session, connect the room and greet the caller. Errors propagate to the
// worker's job supervisor.
func (rc *Receptionist) Entrypoint(ctx context.Context, job *agent.JobContext) error {
	v, ok := job.Proc.Get(detectorKey)
	if !ok {
		return fmt.Errorf("receptionist: detector not prewarmed")
	}
	detector := v.(*vad.Detector)

	providers, err := pipeline.ResolveProviders(rc.cfg.InferenceURL, rc.cfg.STTModel, rc.cfg.LLMModel, rc.cfg.TTSModel)
	if err != nil {
		return err
	}

	session, err := pipeline.NewSession(pipeline.SessionOptions{
		Providers:            providers,
		TTSVoice:             rc.cfg.TTSVoice,
		VAD:                  detector,
		MinEndpointingDelay:  rc.cfg.MinEndpointingDelay,
		PreemptiveGeneration: rc.cfg.PreemptiveGeneration,
	})
	if err != nil {
		return err
	}
	usage := observability.NewUsageCollector()
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		rc.listen(job.ID, session.Events(), usage)
	}()

	// Shutdown callbacks run in reverse registration order: Close the session
	// first so the event stream ends, then the summary hook can drain it.
	job.OnShutdown(func() {
		<-listenerDone
		log.Printf("job %s: %s", job.ID, usage.Summary())
	})
	job.OnShutdown(func() { _ = session.Close() })

	def := persona.NewDefinition(persona.Default())
	// Example booking tool, kept out of the shipped build until the
	// scheduling backend exists:
	//
	// def.Tools = append(def.Tools, persona.Tool{
	// 	Name:        "check_availability",
	// 	Description: "Look up open grooming slots for a given day and service.",
	// 	Handler: func(args map[string]any) (string, error) {
	// 		return scheduling.Lookup(args)
	// 	},
	// })

	started := time.Now()
	if err := session.Start(ctx, def, job.Room, pipeline.RoomInputOptions{
		NoiseCancellation: rc.cfg.NoiseCancellation,
	}); err != nil {
		return err
	}
	if err := job.Room.Connect(ctx); err != nil {
		return err
	}

	if err := session.GenerateReply(ctx, "Greet the caller warmly and offer your help."); err != nil {
		return err
	}
	if rc.metrics != nil {
		rc.metrics.GreetingLatencyMS.Observe(float64(time.Since(started).Milliseconds()))
	}

	// The turn loop runs inside the session; hold the job open until the
	// caller hangs up (room audio channel closes) or the worker is stopping.
	select {
	case <-ctx.Done():
	case <-session.Done():
	}
	return nil
}

// listen logs every pipeline metrics event, feeds the usage collector and the
// Prometheus stage histogram. Returns when the session closes its stream.
func (rc *Receptionist) listen(jobID string, events <-chan pipeline.MetricsEvent, usage *observability.UsageCollector) {
	for ev := range events {
		usage.Collect(observability.UsageEvent{
			Kind:          string(ev.Kind),
			Duration:      ev.Duration,
			TTFB:          ev.TTFB,
			InputTokens:   ev.InputTokens,
			OutputTokens:  ev.OutputTokens,
			Characters:    ev.Characters,
			AudioDuration: ev.AudioDuration,
		})
		if rc.metrics != nil {
			rc.metrics.ObserveStage(string(ev.Kind), ev.Duration)
			if ev.Failed {
				rc.metrics.ProviderErrors.WithLabelValues(string(ev.Kind)).Inc()
			}
		}
		log.Printf("job %s: %s duration=%s ttfb=%s tokens=%d/%d chars=%d audio=%s",
			jobID, ev.Kind, ev.Duration.Round(time.Millisecond), ev.TTFB.Round(time.Millisecond),
			ev.InputTokens, ev.OutputTokens, ev.Characters, ev.AudioDuration.Round(time.Millisecond))
	}
}

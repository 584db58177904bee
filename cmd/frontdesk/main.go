package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pawsandsuds/frontdesk/internal/agent"
	"github.com/pawsandsuds/frontdesk/internal/config"
	"github.com/pawsandsuds/frontdesk/internal/httpapi"
	"github.com/pawsandsuds/frontdesk/internal/observability"
	"github.com/pawsandsuds/frontdesk/internal/receptionist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	desk := receptionist.New(cfg, metrics)

	var worker *agent.Worker
	if cfg.HasLiveKitCredentials() {
		worker, err = agent.NewWorker(agent.WorkerOptions{
			URL:        cfg.LiveKitURL,
			APIKey:     cfg.LiveKitAPIKey,
			APISecret:  cfg.LiveKitAPISecret,
			AgentName:  cfg.AgentName,
			Prewarm:    desk.Prewarm,
			Entrypoint: desk.Entrypoint,
			Metrics:    metrics,
		})
		if err != nil {
			log.Fatalf("worker init failed: %v", err)
		}
	} else {
		log.Printf("agent worker disabled: %v not set", cfg.MissingLiveKitCredentials())
	}

	workerReady := func() bool { return worker != nil && worker.Healthy() }
	api := httpapi.New(cfg, metrics, workerReady)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go func() {
		log.Printf("token service listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// A busy port loses the token endpoint but the agent keeps
			// answering calls; do not take the process down.
			log.Printf("token service listen error on %s: %v", cfg.BindAddr, err)
		}
	}()

	workerDone := make(chan struct{})
	if worker != nil {
		go func() {
			defer close(workerDone)
			if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("worker stopped: %v", err)
			}
		}()
	} else {
		close(workerDone)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Printf("worker did not stop within shutdown timeout")
	}

	log.Printf("shutdown complete")
}

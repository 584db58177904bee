// Package agent implements the worker side of the dispatch contract: it
// registers with the LiveKit agent endpoint, accepts job offers and runs the
// configured entrypoint once per call. Session lifecycle beyond these hooks
// (prewarm, entrypoint, shutdown callbacks) belongs to the dispatcher.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawsandsuds/frontdesk/internal/observability"
	"github.com/pawsandsuds/frontdesk/internal/room"
	"github.com/pawsandsuds/frontdesk/internal/token"
)

const (
	dispatchReadTimeout = 120 * time.Second
	pingInterval        = 30 * time.Second
	reconnectMin        = time.Second
	reconnectMax        = 30 * time.Second
)

// WorkerOptions configure a Worker. Prewarm runs once before any job;
// Entrypoint runs once per dispatched job.
type WorkerOptions struct {
	URL       string
	APIKey    string
	APISecret string
	AgentName string

	Prewarm    func(*Process) error
	Entrypoint func(ctx context.Context, job *JobContext) error

	Metrics *observability.Metrics

	// NewRoom builds the room for an assignment. Defaults to the LiveKit
	// websocket room; tests substitute an in-memory one.
	NewRoom func(serverURL, accessToken, roomName string) room.Room
}

// Worker keeps one registration with the dispatch endpoint and supervises
// the jobs it is assigned.
type Worker struct {
	opts    WorkerOptions
	tokens  *token.Builder
	proc    *Process
	jobs    sync.WaitGroup
	writeMu sync.Mutex
	healthy atomic.Bool
}

func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.URL == "" {
		return nil, errors.New("agent: dispatch url required")
	}
	if opts.APIKey == "" || opts.APISecret == "" {
		return nil, errors.New("agent: api key and secret required")
	}
	if opts.Entrypoint == nil {
		return nil, errors.New("agent: entrypoint required")
	}
	if opts.AgentName == "" {
		opts.AgentName = "agent"
	}
	if opts.NewRoom == nil {
		opts.NewRoom = func(serverURL, accessToken, roomName string) room.Room {
			return room.NewLiveKit(serverURL, accessToken, roomName)
		}
	}
	return &Worker{
		opts:   opts,
		tokens: token.NewBuilder(opts.APIKey, opts.APISecret, 0),
		proc:   NewProcess(),
	}, nil
}

// Healthy reports whether the worker currently holds a dispatch connection.
func (w *Worker) Healthy() bool { return w.healthy.Load() }

// Run prewarms once, then keeps a registration with the dispatch endpoint
// until ctx is done, reconnecting with backoff. Entrypoint failures are
// contained to their job.
func (w *Worker) Run(ctx context.Context) error {
	if w.opts.Prewarm != nil {
		if err := w.opts.Prewarm(w.proc); err != nil {
			return fmt.Errorf("agent: prewarm: %w", err)
		}
	}
	w.proc.Seal()

	backoff := reconnectMin
	for {
		if ctx.Err() != nil {
			break
		}

		err := w.runConnection(ctx)
		w.healthy.Store(false)
		if ctx.Err() != nil {
			break
		}
		log.Printf("worker %s: dispatch connection lost: %v (retrying in %s)", w.opts.AgentName, err, backoff)
		if w.opts.Metrics != nil {
			w.opts.Metrics.WorkerReconnects.Inc()
		}

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}

	w.jobs.Wait()
	return ctx.Err()
}

func (w *Worker) runConnection(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := w.writeJSON(conn, registerMessage{Type: typeRegister, AgentName: w.opts.AgentName}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	go w.pingLoop(connCtx, conn)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(dispatchReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(dispatchReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(dispatchReadTimeout))

		parsed, err := parseDispatchMessage(data)
		if err != nil {
			log.Printf("worker %s: dropping dispatch message: %v", w.opts.AgentName, err)
			continue
		}
		switch msg := parsed.(type) {
		case registeredMessage:
			w.healthy.Store(true)
			log.Printf("worker %s: registered as %s", w.opts.AgentName, msg.WorkerID)
		case availabilityMessage:
			// Single-purpose worker: always willing.
			if err := w.writeJSON(conn, availabilityResponse{
				Type: typeAvailabilityResponse, JobID: msg.JobID, Available: true,
			}); err != nil {
				return err
			}
		case assignment:
			w.jobs.Add(1)
			go func(a assignment) {
				defer w.jobs.Done()
				w.runJob(ctx, conn, a)
			}(msg)
		}
	}
}

func (w *Worker) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(w.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("agent: invalid dispatch url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("agent: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/agent"

	accessToken, err := w.tokens.AgentJoin(w.opts.AgentName)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial dispatch: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial dispatch: %w", err)
	}
	return conn, nil
}

func (w *Worker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// runJob supervises one entrypoint invocation: status reporting, lifecycle
// metrics, and the job's shutdown callbacks. Entrypoint errors and panics
// are contained here.
func (w *Worker) runJob(ctx context.Context, conn *websocket.Conn, a assignment) {
	serverURL := a.URL
	if serverURL == "" {
		serverURL = w.opts.URL
	}

	job := &JobContext{
		ID:   a.JobID,
		Room: w.opts.NewRoom(serverURL, a.Token, a.Room),
		Proc: w.proc,
	}

	if w.opts.Metrics != nil {
		w.opts.Metrics.ActiveJobs.Inc()
		w.opts.Metrics.JobEvents.WithLabelValues("started").Inc()
	}
	_ = w.writeJSON(conn, jobStatus{Type: typeJobStatus, JobID: a.JobID, Status: jobStatusRunning})
	log.Printf("job %s: started for room %s", a.JobID, a.Room)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := w.invokeEntrypoint(jobCtx, job)

	job.RunShutdown()
	_ = job.Room.Disconnect()

	status := jobStatusSuccess
	event := "completed"
	var errText string
	if err != nil {
		status = jobStatusFailed
		event = "failed"
		errText = err.Error()
		log.Printf("job %s: failed: %v", a.JobID, err)
	} else {
		log.Printf("job %s: completed", a.JobID)
	}

	if w.opts.Metrics != nil {
		w.opts.Metrics.ActiveJobs.Dec()
		w.opts.Metrics.JobEvents.WithLabelValues(event).Inc()
	}
	_ = w.writeJSON(conn, jobStatus{Type: typeJobStatus, JobID: a.JobID, Status: status, Error: errText})
}

func (w *Worker) invokeEntrypoint(ctx context.Context, job *JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entrypoint panic: %v", r)
		}
	}()
	return w.opts.Entrypoint(ctx, job)
}

func (w *Worker) writeJSON(conn *websocket.Conn, v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

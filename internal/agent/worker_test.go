package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawsandsuds/frontdesk/internal/room"
)

// dispatchServer is an httptest stand-in for the agent dispatch endpoint. It
// accepts one worker registration, offers the queued jobs, and records every
// message the worker sends.
type dispatchServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	srv      *httptest.Server

	jobs []assignment

	mu       sync.Mutex
	token    string
	statuses []jobStatus
	accepted []availabilityResponse
}

func newDispatchServer(t *testing.T, jobs ...assignment) *dispatchServer {
	t.Helper()
	ds := &dispatchServer{t: t, jobs: jobs}
	ds.srv = httptest.NewServer(http.HandlerFunc(ds.handle))
	t.Cleanup(ds.srv.Close)
	return ds
}

func (ds *dispatchServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/agent" {
		http.NotFound(w, r)
		return
	}
	ds.mu.Lock()
	ds.token = r.URL.Query().Get("access_token")
	ds.mu.Unlock()

	conn, err := ds.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var reg registerMessage
	if err := conn.ReadJSON(&reg); err != nil || reg.Type != typeRegister {
		ds.t.Errorf("first message = %+v, err = %v, want register", reg, err)
		return
	}
	if err := conn.WriteJSON(registeredMessage{Type: typeRegistered, WorkerID: "wk-1"}); err != nil {
		return
	}

	for _, job := range ds.jobs {
		if err := conn.WriteJSON(availabilityMessage{Type: typeAvailability, JobID: job.JobID, Room: job.Room}); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env dispatchEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case typeAvailabilityResponse:
			var resp availabilityResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			ds.mu.Lock()
			ds.accepted = append(ds.accepted, resp)
			ds.mu.Unlock()
			if resp.Available {
				for _, job := range ds.jobs {
					if job.JobID == resp.JobID {
						_ = conn.WriteJSON(job)
					}
				}
			}
		case typeJobStatus:
			var st jobStatus
			if err := json.Unmarshal(data, &st); err != nil {
				continue
			}
			ds.mu.Lock()
			ds.statuses = append(ds.statuses, st)
			ds.mu.Unlock()
		}
	}
}

func (ds *dispatchServer) accessToken() string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.token
}

func (ds *dispatchServer) statusesFor(jobID string) []jobStatus {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	var out []jobStatus
	for _, st := range ds.statuses {
		if st.JobID == jobID {
			out = append(out, st)
		}
	}
	return out
}

func waitForCond(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func memRoomFactory(rooms *sync.Map) func(string, string, string) room.Room {
	return func(_, _, roomName string) room.Room {
		r := room.NewMem(roomName)
		rooms.Store(roomName, r)
		return r
	}
}

func TestWorkerRunsDispatchedJob(t *testing.T) {
	ds := newDispatchServer(t, assignment{
		Type: typeAssignment, JobID: "job-1", Room: "call-42", Token: "tok-abc",
	})

	var rooms sync.Map
	var entryMu sync.Mutex
	var entries []string
	prewarmed := 0

	worker, err := NewWorker(WorkerOptions{
		URL:       ds.srv.URL,
		APIKey:    "devkey",
		APISecret: "devsecret",
		AgentName: "frontdesk",
		Prewarm: func(proc *Process) error {
			prewarmed++
			proc.Set("greeting", "warm")
			return nil
		},
		Entrypoint: func(ctx context.Context, job *JobContext) error {
			v, ok := job.Proc.Get("greeting")
			if !ok || v != "warm" {
				t.Errorf("prewarmed value = %v, %v", v, ok)
			}
			entryMu.Lock()
			entries = append(entries, job.Room.Name())
			entryMu.Unlock()
			return nil
		},
		NewRoom: memRoomFactory(&rooms),
	})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	waitForCond(t, 2*time.Second, func() bool {
		sts := ds.statusesFor("job-1")
		return len(sts) >= 2 && sts[len(sts)-1].Status == jobStatusSuccess
	})

	if ds.accessToken() == "" {
		t.Fatalf("dispatch dial carried no access_token")
	}
	if prewarmed != 1 {
		t.Fatalf("prewarm ran %d times, want 1", prewarmed)
	}
	entryMu.Lock()
	gotEntries := append([]string(nil), entries...)
	entryMu.Unlock()
	if len(gotEntries) != 1 || gotEntries[0] != "call-42" {
		t.Fatalf("entrypoint rooms = %v, want [call-42]", gotEntries)
	}
	sts := ds.statusesFor("job-1")
	if sts[0].Status != jobStatusRunning {
		t.Fatalf("first status = %q, want running", sts[0].Status)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}

func TestWorkerReportsJobFailure(t *testing.T) {
	ds := newDispatchServer(t, assignment{
		Type: typeAssignment, JobID: "job-err", Room: "call-9", Token: "tok",
	})

	var rooms sync.Map
	worker, err := NewWorker(WorkerOptions{
		URL:       ds.srv.URL,
		APIKey:    "devkey",
		APISecret: "devsecret",
		AgentName: "frontdesk",
		Entrypoint: func(ctx context.Context, job *JobContext) error {
			return errors.New("provider unreachable")
		},
		NewRoom: memRoomFactory(&rooms),
	})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	waitForCond(t, 2*time.Second, func() bool {
		sts := ds.statusesFor("job-err")
		return len(sts) >= 2 && sts[len(sts)-1].Status == jobStatusFailed
	})

	sts := ds.statusesFor("job-err")
	last := sts[len(sts)-1]
	if !strings.Contains(last.Error, "provider unreachable") {
		t.Fatalf("job_status error = %q, want entrypoint error", last.Error)
	}
}

func TestWorkerContainsEntrypointPanic(t *testing.T) {
	ds := newDispatchServer(t, assignment{
		Type: typeAssignment, JobID: "job-panic", Room: "call-3", Token: "tok",
	})

	var rooms sync.Map
	worker, err := NewWorker(WorkerOptions{
		URL:       ds.srv.URL,
		APIKey:    "devkey",
		APISecret: "devsecret",
		AgentName: "frontdesk",
		Entrypoint: func(ctx context.Context, job *JobContext) error {
			panic("session blew up")
		},
		NewRoom: memRoomFactory(&rooms),
	})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	waitForCond(t, 2*time.Second, func() bool {
		sts := ds.statusesFor("job-panic")
		return len(sts) >= 2 && sts[len(sts)-1].Status == jobStatusFailed
	})

	sts := ds.statusesFor("job-panic")
	if !strings.Contains(sts[len(sts)-1].Error, "session blew up") {
		t.Fatalf("job_status error = %q, want panic message", sts[len(sts)-1].Error)
	}
}

func TestWorkerRunsShutdownCallbacksAfterJob(t *testing.T) {
	ds := newDispatchServer(t, assignment{
		Type: typeAssignment, JobID: "job-sd", Room: "call-7", Token: "tok",
	})

	var rooms sync.Map
	ran := make(chan string, 2)
	worker, err := NewWorker(WorkerOptions{
		URL:       ds.srv.URL,
		APIKey:    "devkey",
		APISecret: "devsecret",
		AgentName: "frontdesk",
		Entrypoint: func(ctx context.Context, job *JobContext) error {
			job.OnShutdown(func() { ran <- "first" })
			job.OnShutdown(func() { ran <- "second" })
			return nil
		},
		NewRoom: memRoomFactory(&rooms),
	})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	waitForCond(t, 2*time.Second, func() bool { return len(ran) == 2 })

	if got := <-ran; got != "second" {
		t.Fatalf("first shutdown callback = %q, want reverse registration order", got)
	}
	if got := <-ran; got != "first" {
		t.Fatalf("second shutdown callback = %q", got)
	}

	v, ok := rooms.Load("call-7")
	if !ok {
		t.Fatalf("room call-7 never constructed")
	}
	if v.(*room.Mem).Connected() {
		t.Fatalf("room still connected after job end")
	}
}

func TestNewWorkerValidation(t *testing.T) {
	entry := func(context.Context, *JobContext) error { return nil }
	cases := []struct {
		name string
		opts WorkerOptions
	}{
		{"missing url", WorkerOptions{APIKey: "k", APISecret: "s", Entrypoint: entry}},
		{"missing credentials", WorkerOptions{URL: "http://x", Entrypoint: entry}},
		{"missing entrypoint", WorkerOptions{URL: "http://x", APIKey: "k", APISecret: "s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewWorker(tc.opts); err == nil {
				t.Fatalf("NewWorker() error = nil, want error")
			}
		})
	}
}

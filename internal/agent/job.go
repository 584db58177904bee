package agent

import (
	"log"
	"sync"

	"github.com/pawsandsuds/frontdesk/internal/room"
)

// Process carries per-worker-process shared state. Prewarm populates it once
// before any job runs; afterwards it is read-only and safe to share across
// concurrent jobs.
type Process struct {
	mu       sync.RWMutex
	userdata map[string]any
	warmed   bool
}

func NewProcess() *Process {
	return &Process{userdata: make(map[string]any)}
}

// Set stores a value during prewarm. Calling it after prewarm completes
// panics: jobs must never mutate shared process state.
func (p *Process) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warmed {
		panic("agent: Process.Set after prewarm")
	}
	p.userdata[key] = value
}

func (p *Process) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.userdata[key]
	return v, ok
}

// Seal marks prewarm as finished; later writes panic.
func (p *Process) Seal() {
	p.mu.Lock()
	p.warmed = true
	p.mu.Unlock()
}

// JobContext is handed to the entrypoint, one per dispatched call.
type JobContext struct {
	ID   string
	Room room.Room
	Proc *Process

	mu       sync.Mutex
	shutdown []func()
	once     sync.Once
}

// OnShutdown registers a callback run once when the job ends, whether the
// entrypoint returned, the call was cancelled, or the worker is stopping.
func (j *JobContext) OnShutdown(fn func()) {
	if fn == nil {
		return
	}
	j.mu.Lock()
	j.shutdown = append(j.shutdown, fn)
	j.mu.Unlock()
}

// RunShutdown invokes the registered callbacks exactly once, in reverse
// registration order. Called by the worker's job supervisor when the job
// ends. A panicking callback is recovered and logged so the remaining
// callbacks still run.
func (j *JobContext) RunShutdown() {
	j.once.Do(func() {
		j.mu.Lock()
		hooks := make([]func(), len(j.shutdown))
		copy(hooks, j.shutdown)
		j.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			func(fn func()) {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("job %s: shutdown callback panicked: %v", j.ID, r)
					}
				}()
				fn()
			}(hooks[i])
		}
	})
}

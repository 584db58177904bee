package room

import (
	"context"
	"fmt"
	"sync"
)

// Mem is an in-process Room used by tests and offline runs. Caller audio is
// injected with PushCallerAudio; published agent audio is captured.
type Mem struct {
	name string

	mu        sync.Mutex
	connected bool
	closed    bool
	in        chan Frame
	published []Frame
}

func NewMem(name string) *Mem {
	return &Mem{name: name, in: make(chan Frame, 64)}
}

func (r *Mem) Connect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("room: %s already disconnected", r.name)
	}
	r.connected = true
	return nil
}

func (r *Mem) Name() string          { return r.name }
func (r *Mem) AudioIn() <-chan Frame { return r.in }

func (r *Mem) Publish(_ context.Context, f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected || r.closed {
		return fmt.Errorf("room: %s not connected", r.name)
	}
	r.published = append(r.published, f)
	return nil
}

func (r *Mem) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.in)
	return nil
}

// PushCallerAudio injects a frame of caller audio. Returns false once the
// room is disconnected.
func (r *Mem) PushCallerAudio(f Frame) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()
	r.in <- f
	return true
}

// Published returns a copy of the frames the agent has sent so far.
func (r *Mem) Published() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.published))
	copy(out, r.published)
	return out
}

// Connected reports whether Connect has been called.
func (r *Mem) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected && !r.closed
}

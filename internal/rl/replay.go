package rl

import (
	"fmt"
	"math/rand"
	"sync"
)

// Transition is one step of experience.
type Transition struct {
	Obs     Observation
	Action  []float64
	Reward  float64
	NextObs Observation
	Done    bool
}

// ReplayBuffer is a fixed-capacity ring: once full, the oldest
// transition is evicted. Writes are mutex-guarded so parallel
// collectors can share one buffer.
type ReplayBuffer struct {
	mu   sync.Mutex
	buf  []Transition
	next int
	full bool
}

func NewReplayBuffer(capacity int) (*ReplayBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	return &ReplayBuffer{buf: make([]Transition, capacity)}, nil
}

func (r *ReplayBuffer) Add(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = tr
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ReplayBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.length()
}

func (r *ReplayBuffer) length() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Sample draws batch transitions uniformly with replacement. Errors if
// the buffer holds fewer than batch entries.
func (r *ReplayBuffer) Sample(rng *rand.Rand, batch int) ([]Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.length()
	if batch <= 0 || n < batch {
		return nil, fmt.Errorf("cannot sample %d from buffer of %d", batch, n)
	}

	out := make([]Transition, batch)
	for i := range out {
		out[i] = r.buf[rng.Intn(n)]
	}
	return out, nil
}

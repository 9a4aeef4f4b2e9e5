package upstream

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one upstream.
type Health struct {
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	LastSuccessAt  *time.Time
	LastFailureAt  *time.Time
	LastError      string
	StateChangedAt *time.Time
}

// Open reports whether requests to the upstream are currently rejected.
func (h Health) Open() bool {
	return h.State == gobreaker.StateOpen
}

// Probing reports whether the circuit is half-open.
func (h Health) Probing() bool {
	return h.State == gobreaker.StateHalfOpen
}

// Registry tracks the upstream clients of a process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	client         *Client
	lastSuccessAt  *time.Time
	lastFailureAt  *time.Time
	lastError      string
	stateChangedAt *time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c.Name()] = &entry{client: c}
}

func (r *Registry) update(name string, fn func(e *entry, now time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		fn(e, time.Now().UTC())
	}
}

func (r *Registry) recordSuccess(name string) {
	r.update(name, func(e *entry, now time.Time) { e.lastSuccessAt = &now })
}

func (r *Registry) recordFailure(name string, err error) {
	r.update(name, func(e *entry, now time.Time) {
		e.lastFailureAt = &now
		e.lastError = err.Error()
	})
}

func (r *Registry) recordTransition(name string) {
	r.update(name, func(e *entry, now time.Time) { e.stateChangedAt = &now })
}

// Lookup returns the health of one upstream.
func (r *Registry) Lookup(name string) (Health, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	var snap entry
	if ok {
		snap = *e
	}
	r.mu.RUnlock()

	if !ok {
		return Health{}, false
	}
	return snap.health(name), true
}

// All returns the health of every upstream ordered by name.
func (r *Registry) All() []Health {
	// Breaker state is read outside the lock: state change callbacks run
	// with the breaker locked and then take r.mu.
	r.mu.RLock()
	snaps := make(map[string]entry, len(r.entries))
	for name, e := range r.entries {
		snaps[name] = *e
	}
	r.mu.RUnlock()

	out := make([]Health, 0, len(snaps))
	for name, e := range snaps {
		out = append(out, e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Unavailable returns the names of upstreams with an open circuit.
func (r *Registry) Unavailable() []string {
	var names []string
	for _, h := range r.All() {
		if h.Open() {
			names = append(names, h.Name)
		}
	}
	return names
}

func (e entry) health(name string) Health {
	return Health{
		Name:           name,
		State:          e.client.State(),
		Counts:         e.client.Counts(),
		LastSuccessAt:  e.lastSuccessAt,
		LastFailureAt:  e.lastFailureAt,
		LastError:      e.lastError,
		StateChangedAt: e.stateChangedAt,
	}
}

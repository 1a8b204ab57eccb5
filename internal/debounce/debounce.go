// Package debounce holds edits until input goes quiet and tracks request
// generations so that superseded async results can be dropped.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the quiet period before a pending edit commits.
const DefaultInterval = 250 * time.Millisecond

// Pending holds at most one uncommitted value. Each Schedule replaces the
// value and restarts the timer; commit runs once the timer fires.
type Pending[T any] struct {
	interval time.Duration
	commit   func(T)

	mu     sync.Mutex
	timer  *time.Timer
	value  T
	armed  bool
	seq    uint64
	closed bool
}

// NewPending returns a Pending that calls commit after interval of quiet.
// A non-positive interval uses DefaultInterval.
func NewPending[T any](interval time.Duration, commit func(T)) *Pending[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pending[T]{interval: interval, commit: commit}
}

// Schedule replaces the pending value and restarts the quiet period.
// It returns false once the Pending has been closed.
func (p *Pending[T]) Schedule(v T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.value = v
	p.armed = true
	p.seq++
	seq := p.seq
	p.timer = time.AfterFunc(p.interval, func() { p.fire(seq) })
	return true
}

func (p *Pending[T]) fire(seq uint64) {
	p.mu.Lock()
	// A timer that lost the race with Schedule, Flush or Cancel is ignored.
	if p.closed || !p.armed || seq != p.seq {
		p.mu.Unlock()
		return
	}
	v := p.take()
	p.mu.Unlock()
	p.commit(v)
}

// take disarms and returns the pending value. Callers hold mu.
func (p *Pending[T]) take() T {
	v := p.value
	var zero T
	p.value = zero
	p.armed = false
	p.seq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return v
}

// Flush commits the pending value now. It reports whether there was one.
func (p *Pending[T]) Flush() bool {
	p.mu.Lock()
	if p.closed || !p.armed {
		p.mu.Unlock()
		return false
	}
	v := p.take()
	p.mu.Unlock()
	p.commit(v)
	return true
}

// Cancel drops the pending value without committing it.
func (p *Pending[T]) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.armed {
		return false
	}
	p.take()
	return true
}

// Close cancels any pending value and disables further scheduling. Nothing
// is committed after Close returns.
func (p *Pending[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.armed {
		p.take()
	}
	p.closed = true
}

// HasPending reports whether a value is waiting to commit.
func (p *Pending[T]) HasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

// Group keeps one Pending per key, for example one per message being edited.
type Group[K comparable, T any] struct {
	interval time.Duration
	commit   func(K, T)

	mu      sync.Mutex
	pending map[K]*Pending[T]
	closed  bool
}

// NewGroup returns an empty Group.
func NewGroup[K comparable, T any](interval time.Duration, commit func(K, T)) *Group[K, T] {
	return &Group[K, T]{interval: interval, commit: commit, pending: make(map[K]*Pending[T])}
}

// Schedule schedules v for key k. A key is forgotten once its value
// commits, so the group only holds keys with something pending.
func (g *Group[K, T]) Schedule(k K, v T) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	p, ok := g.pending[k]
	if !ok {
		var created *Pending[T]
		created = NewPending(g.interval, func(v T) {
			g.commit(k, v)
			g.release(k, created)
		})
		p = created
		g.pending[k] = p
	}
	// g.mu is held so release cannot close p between lookup and Schedule.
	return p.Schedule(v)
}

// release forgets k if p is still its Pending and nothing was scheduled
// while p was committing.
func (g *Group[K, T]) release(k K, p *Pending[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.pending[k]; ok && cur == p && !p.HasPending() {
		delete(g.pending, k)
		p.Close()
	}
}

// Len returns the number of keys with a pending value.
func (g *Group[K, T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Flush commits the pending value for k, if any.
func (g *Group[K, T]) Flush(k K) bool {
	g.mu.Lock()
	p, ok := g.pending[k]
	g.mu.Unlock()
	return ok && p.Flush()
}

// FlushAll commits every pending value.
func (g *Group[K, T]) FlushAll() int {
	g.mu.Lock()
	ps := make([]*Pending[T], 0, len(g.pending))
	for _, p := range g.pending {
		ps = append(ps, p)
	}
	g.mu.Unlock()
	n := 0
	for _, p := range ps {
		if p.Flush() {
			n++
		}
	}
	return n
}

// Cancel drops the pending value for k and forgets the key.
func (g *Group[K, T]) Cancel(k K) bool {
	g.mu.Lock()
	p, ok := g.pending[k]
	delete(g.pending, k)
	g.mu.Unlock()
	if !ok {
		return false
	}
	had := p.Cancel()
	p.Close()
	return had
}

// CloseAll cancels every pending value without committing and rejects
// further scheduling.
func (g *Group[K, T]) CloseAll() {
	g.mu.Lock()
	ps := g.pending
	g.pending = make(map[K]*Pending[T])
	g.closed = true
	g.mu.Unlock()
	for _, p := range ps {
		p.Close()
	}
}

// Generation is a monotonic request counter. An async operation captures
// Next() when it starts and applies its result only if IsCurrent still
// holds when it finishes.
type Generation struct {
	n atomic.Uint64
}

// Next starts a new generation and returns it.
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

// Current returns the latest generation.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// IsCurrent reports whether gen is still the latest generation.
func (g *Generation) IsCurrent(gen uint64) bool {
	return g.n.Load() == gen
}

// Invalidate supersedes every outstanding generation.
func (g *Generation) Invalidate() {
	g.n.Add(1)
}

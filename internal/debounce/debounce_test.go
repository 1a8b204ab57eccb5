package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder[T any] struct {
	mu   sync.Mutex
	got  []T
	done chan struct{}
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{done: make(chan struct{}, 16)}
}

func (r *recorder[T]) commit(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func TestPendingCommitsLastValueAfterQuiet(t *testing.T) {
	rec := newRecorder[string]()
	p := NewPending(20*time.Millisecond, rec.commit)

	p.Schedule("h")
	p.Schedule("he")
	p.Schedule("hello")

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("pending edit never committed")
	}
	assert.Equal(t, []string{"hello"}, rec.values())
	assert.False(t, p.HasPending())
}

func TestPendingFlush(t *testing.T) {
	rec := newRecorder[int]()
	p := NewPending(time.Hour, rec.commit)

	assert.False(t, p.Flush(), "nothing pending")
	p.Schedule(7)
	assert.True(t, p.Flush())
	assert.Equal(t, []int{7}, rec.values())
	assert.False(t, p.Flush(), "flush consumes the value")
}

func TestPendingCancelAndClose(t *testing.T) {
	rec := newRecorder[int]()
	p := NewPending(10*time.Millisecond, rec.commit)

	p.Schedule(1)
	assert.True(t, p.Cancel())
	assert.False(t, p.Cancel())

	p.Schedule(2)
	p.Close()
	assert.False(t, p.Schedule(3), "closed pending rejects new values")
	assert.False(t, p.Flush())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.values())
}

func TestNewPendingDefaultsInterval(t *testing.T) {
	p := NewPending(0, func(int) {})
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestGroupKeysAreIndependent(t *testing.T) {
	var (
		mu  sync.Mutex
		got = map[int]string{}
	)
	g := NewGroup(time.Hour, func(k int, v string) {
		mu.Lock()
		got[k] = v
		mu.Unlock()
	})

	g.Schedule(1, "a")
	g.Schedule(2, "b")
	g.Schedule(1, "a2")

	assert.True(t, g.Flush(1))
	assert.False(t, g.Flush(3))
	assert.True(t, g.Cancel(2))
	assert.Equal(t, 0, g.FlushAll())

	mu.Lock()
	assert.Equal(t, map[int]string{1: "a2"}, got)
	mu.Unlock()
}

func TestGroupCloseAll(t *testing.T) {
	calls := 0
	g := NewGroup(time.Hour, func(int, string) { calls++ })
	g.Schedule(1, "x")
	g.Schedule(2, "y")

	g.CloseAll()
	assert.False(t, g.Schedule(3, "z"))
	assert.Equal(t, 0, g.FlushAll())
	assert.Zero(t, calls)
}

func TestGroupForgetsCommittedKeys(t *testing.T) {
	rec := newRecorder[string]()
	g := NewGroup(10*time.Millisecond, func(_ int, v string) { rec.commit(v) })

	g.Schedule(1, "flushed")
	g.Schedule(2, "fired")
	assert.Equal(t, 2, g.Len())

	assert.True(t, g.Flush(1))
	assert.Equal(t, 1, g.Len())

	select {
	case <-rec.done:
	case <-time.After(time.Second):
	}
	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("timer never committed")
	}
	require.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"flushed", "fired"}, rec.values())

	// A forgotten key can be scheduled again.
	assert.True(t, g.Schedule(1, "again"))
	assert.True(t, g.Flush(1))
	assert.Equal(t, 0, g.Len())
}

func TestGeneration(t *testing.T) {
	var g Generation
	first := g.Next()
	require.True(t, g.IsCurrent(first))

	second := g.Next()
	assert.False(t, g.IsCurrent(first), "older request is stale")
	assert.True(t, g.IsCurrent(second))

	g.Invalidate()
	assert.False(t, g.IsCurrent(second))
	assert.Greater(t, g.Current(), second)
}

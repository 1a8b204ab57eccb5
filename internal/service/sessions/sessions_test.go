package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(cfg, nil)
	m.now = clock.now
	t.Cleanup(func() { m.Close(context.Background()) })
	return m, clock
}

func TestCreateGetDelete(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	s := m.Create(playground.Seed{Streaming: true})
	assert.Equal(t, 1, m.Len())
	assert.True(t, s.Store.Snapshot().Streaming)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(s.ID))
	assert.ErrorIs(t, m.Delete(s.ID), ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestDebouncedContentEdits(t *testing.T) {
	m, _ := newTestManager(t, Config{DebounceInterval: time.Hour})
	s := m.Create(playground.Seed{})

	st := s.Store.Snapshot()
	userMsg := st.Instances[0].Template[1]

	assert.True(t, s.ScheduleContent(userMsg, "draft"))
	assert.True(t, s.ScheduleContent(userMsg, "{{topic}} final"))
	assert.Equal(t, st.Version, s.Store.Snapshot().Version, "nothing committed before the interval")

	assert.Equal(t, 1, s.FlushEdits())
	after := s.Store.Snapshot()
	assert.Equal(t, "{{topic}} final", after.Messages[userMsg].Text())
	assert.Equal(t, []string{"topic"}, after.Variables.Keys)
	assert.Equal(t, st.Version+1, after.Version, "collapsed into a single commit")
}

func TestDeleteDiscardsQueuedEdits(t *testing.T) {
	m, _ := newTestManager(t, Config{DebounceInterval: time.Hour})
	s := m.Create(playground.Seed{})
	userMsg := s.Store.Snapshot().Instances[0].Template[1]

	s.ScheduleContent(userMsg, "lost")
	require.NoError(t, m.Delete(s.ID))

	assert.Equal(t, 0, s.FlushEdits())
	assert.Equal(t, "{{question}}", s.Store.Snapshot().Messages[userMsg].Text())
	assert.False(t, s.ScheduleContent(userMsg, "too late"))
}

func TestEditToDeletedMessageIsDropped(t *testing.T) {
	m, _ := newTestManager(t, Config{DebounceInterval: time.Hour})
	s := m.Create(playground.Seed{})
	st := s.Store.Snapshot()
	inst := st.Instances[0].ID
	userMsg := st.Instances[0].Template[1]

	s.ScheduleContent(userMsg, "edit")
	require.NoError(t, s.Store.DeleteMessage(inst, userMsg))
	version := s.Store.Snapshot().Version

	s.FlushEdits()
	assert.Equal(t, version, s.Store.Snapshot().Version, "failed commit leaves the store unchanged")
}

func TestDirectEditCancelsQueuedEdit(t *testing.T) {
	m, _ := newTestManager(t, Config{DebounceInterval: 20 * time.Millisecond})
	s := m.Create(playground.Seed{})
	userMsg := s.Store.Snapshot().Instances[0].Template[1]

	require.True(t, s.ScheduleContent(userMsg, "stale typed text"))
	assert.Equal(t, 1, s.PendingEdits())

	assert.True(t, s.CancelEdit(userMsg))
	latest := "committed later"
	require.NoError(t, s.Store.UpdateMessage(userMsg, model.MessagePatch{Content: &latest}, playground.UpdateOptions{}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "committed later", s.Store.Snapshot().Messages[userMsg].Text())
	assert.Equal(t, 0, s.PendingEdits())
	assert.False(t, s.CancelEdit(userMsg), "nothing left to cancel")

	// Typing resumes normally after a cancel.
	require.True(t, s.ScheduleContent(userMsg, "typed again"))
	require.Eventually(t, func() bool {
		return s.Store.Snapshot().Messages[userMsg].Text() == "typed again"
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.PendingEdits() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEvictIdle(t *testing.T) {
	m, clock := newTestManager(t, Config{IdleTimeout: 10 * time.Minute})
	old := m.Create(playground.Seed{})
	clock.t = clock.t.Add(8 * time.Minute)
	fresh := m.Create(playground.Seed{})

	clock.t = clock.t.Add(5 * time.Minute)
	evicted := m.EvictIdle()
	assert.Equal(t, []uuid.UUID{old.ID}, evicted)

	_, err := m.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Get refreshes last use.
	_, err = m.Get(fresh.ID)
	require.NoError(t, err)
	clock.t = clock.t.Add(9 * time.Minute)
	assert.Empty(t, m.EvictIdle())
}

func TestEvictIdleNotifies(t *testing.T) {
	var notified []uuid.UUID
	m, clock := newTestManager(t, Config{
		IdleTimeout: time.Minute,
		OnEvict:     func(ids []uuid.UUID) { notified = append(notified, ids...) },
	})
	s := m.Create(playground.Seed{})

	assert.Empty(t, m.EvictIdle())
	assert.Empty(t, notified, "no callback without evictions")

	clock.t = clock.t.Add(2 * time.Minute)
	m.EvictIdle()
	assert.Equal(t, []uuid.UUID{s.ID}, notified)
}

func TestList(t *testing.T) {
	m, clock := newTestManager(t, Config{})
	a := m.Create(playground.Seed{})
	clock.t = clock.t.Add(time.Second)
	b := m.Create(playground.Seed{})
	_, err := b.Store.AddInstance(playground.AddInstanceOptions{})
	require.NoError(t, err)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, a.ID, infos[0].ID)
	assert.Equal(t, 1, infos[0].Instances)
	assert.Equal(t, b.ID, infos[1].ID)
	assert.Equal(t, 2, infos[1].Instances)
}

func TestStartStop(t *testing.T) {
	m, _ := newTestManager(t, Config{SweepSpec: "not a schedule"})
	assert.Error(t, m.Start())

	m, _ = newTestManager(t, Config{SweepSpec: "@every 1h"})
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	m.Stop(context.Background())
	require.NoError(t, m.Start(), "restartable after Stop")
}

func TestSeedModelIsApplied(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	name := "claude-3-5-sonnet"
	s := m.Create(playground.Seed{Model: model.ModelConfig{Provider: model.ProviderAnthropic, ModelName: &name}})
	inst := s.Store.Snapshot().Instances[0]
	assert.Equal(t, model.ProviderAnthropic, inst.Model.Provider)
}

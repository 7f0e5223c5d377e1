package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/testutil"
	"github.com/banshee-data/rehab.report/internal/timeutil"
)

// recordingSink collects saved summaries and can be told to fail.
type recordingSink struct {
	mu    sync.Mutex
	saved []Summary
	fail  error
	ch    chan Summary
}

func (r *recordingSink) SaveSummary(_ context.Context, s Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.saved = append(r.saved, s)
	if r.ch != nil {
		select {
		case r.ch <- s:
		default:
		}
	}
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func newTestManager(t *testing.T, sink SummarySink) (*Manager, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(t0)
	m := NewManager(ManagerConfig{
		Definitions: exercise.FallbackSource{Source: exercise.MapSource{"arm_raise": raiseDefinition()}},
		Sink:        sink,
		Clock:       clock,
		IdleTimeout: 10 * time.Second,
	})
	return m, clock
}

func TestManager_StartUnknownSource(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{Definitions: exercise.MapSource{}})
	_, err := m.Start(context.Background(), "lunge", 3, time.Minute)
	assert.True(t, errors.Is(err, exercise.ErrNotFound))

	_, err = NewManager(ManagerConfig{}).Start(context.Background(), "lunge", 3, time.Minute)
	assert.Error(t, err)
}

func TestManager_GenericFallback(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, nil)
	id, err := m.Start(context.Background(), "Wall Slide", 3, time.Minute)
	require.NoError(t, err)
	s, ok := m.Session(id)
	require.True(t, ok)
	assert.Equal(t, "generic", s.Definition.ID)
	assert.Equal(t, "Wall Slide", s.Definition.Name)
}

func TestManager_CompletionPersistsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := &recordingSink{}
	m, _ := newTestManager(t, sink)

	id, err := m.Start(ctx, "arm_raise", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, m.Active())

	now := t0
	var last FrameResult
	for _, a := range cycle[:10] {
		now = now.Add(step)
		last, err = m.ProcessFrame(ctx, id, testutil.Standing(now).Arms(a).Build(), now)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusCompleted, last.Status)
	assert.Equal(t, 1, sink.count())

	_, err = m.ProcessFrame(ctx, id, testutil.Standing(now).Build(), now.Add(step))
	assert.True(t, errors.Is(err, ErrSessionClosed))

	first, err := m.End(ctx, id, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, 1, first.CompletedReps)
	assert.Equal(t, 1, sink.count())
	assert.Empty(t, m.Active())

	again, err := m.End(ctx, id, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = m.ProcessFrame(ctx, id, testutil.Standing(now).Build(), now.Add(time.Minute))
	assert.True(t, errors.Is(err, ErrSessionClosed))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestManager_EndRetriesFailedSink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := &recordingSink{fail: errors.New("disk full")}
	m, _ := newTestManager(t, sink)

	id, err := m.Start(ctx, "arm_raise", 3, time.Minute)
	require.NoError(t, err)

	_, err = m.End(ctx, id, t0.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, []string{id}, m.Active())

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()

	sum, err := m.End(ctx, id, t0.Add(2*time.Second))
	require.NoError(t, err)
	// The summary froze at the first End.
	assert.Equal(t, t0.Add(time.Second), sum.EndedAt)
	assert.Equal(t, 1, sink.count())
}

func TestManager_ReapExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := &recordingSink{}
	m, _ := newTestManager(t, sink)

	idle, err := m.Start(ctx, "arm_raise", 3, time.Hour)
	require.NoError(t, err)
	busy, err := m.Start(ctx, "arm_raise", 3, time.Hour)
	require.NoError(t, err)

	_, err = m.ProcessFrame(ctx, busy, testutil.Standing(t0).Build(), t0.Add(8*time.Second))
	require.NoError(t, err)

	closed := m.ReapExpired(ctx, t0.Add(12*time.Second))
	require.Len(t, closed, 1)
	assert.Equal(t, idle, closed[0].SessionID)
	assert.Equal(t, StatusTimeout, closed[0].Status)
	assert.Equal(t, []string{busy}, m.Active())

	sum, err := m.End(ctx, idle, t0.Add(13*time.Second))
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, sum.Status)

	// Ended summaries are forgotten after the idle timeout.
	m.ReapExpired(ctx, t0.Add(30*time.Second))
	_, err = m.End(ctx, idle, t0.Add(31*time.Second))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 2, sink.count())
}

func TestManager_EndWaitingOnReapedSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := &recordingSink{}
	m, _ := newTestManager(t, sink)

	id, err := m.Start(ctx, "arm_raise", 3, time.Hour)
	require.NoError(t, err)

	// Hold the session lock so End queues behind it, then close the
	// session the way the reaper does.
	s, unlock, err := m.lock(id)
	require.NoError(t, err)

	type result struct {
		sum Summary
		err error
	}
	done := make(chan result, 1)
	go func() {
		sum, err := m.End(ctx, id, t0.Add(20*time.Second))
		done <- result{sum, err}
	}()
	time.Sleep(20 * time.Millisecond)

	reaped := s.Expire(t0.Add(12 * time.Second))
	require.NoError(t, m.close(ctx, s))
	unlock()

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, reaped, got.sum)
	assert.Equal(t, StatusTimeout, got.sum.Status)
	assert.Equal(t, 1, sink.count())

	_, err = m.ProcessFrame(ctx, id, testutil.Standing(t0).Build(), t0.Add(21*time.Second))
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestManager_RunReaper(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{ch: make(chan Summary, 1)}
	m, clock := newTestManager(t, sink)
	_, err := m.Start(ctx, "arm_raise", 3, time.Hour)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.RunReaper(ctx, time.Second)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		clock.Advance(5 * time.Second)
		select {
		case s := <-sink.ch:
			return s.Status == StatusTimeout
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestManager_ConcurrentSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	const sessions, writers, frames = 4, 3, 40
	ids := make([]string, sessions)
	for i := range ids {
		id, err := m.Start(ctx, "arm_raise", 1000, time.Hour)
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(id string, w int) {
				defer wg.Done()
				for i := 0; i < frames; i++ {
					ts := testutil.Tick(t0, i*writers+w+1, step)
					_, err := m.ProcessFrame(ctx, id, testutil.Standing(ts).Arms(float64(i%12)*10).Build(), ts)
					assert.NoError(t, err)
				}
			}(id, w)
		}
	}
	wg.Wait()

	for _, id := range ids {
		s, ok := m.Session(id)
		require.True(t, ok)
		assert.Equal(t, writers*frames, s.Frames())
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	st := NewMemoryStore()
	s := mustStart(t, raiseDefinition(), 1, time.Minute, WithID("b"))
	st.Put(s)
	st.Put(mustStart(t, raiseDefinition(), 1, time.Minute, WithID("a")))

	got, ok := st.Get("b")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, []string{"a", "b"}, st.IDs())

	st.Remove("b")
	_, ok = st.Get("b")
	assert.False(t, ok)
}

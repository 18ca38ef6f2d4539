package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testManager(t *testing.T, opts ...Option) (*Manager, *fakeClock, *store.MemoryStore) {
	t.Helper()
	clock := &fakeClock{now: t0}
	st := store.NewMemoryStore()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(st, logging.New(nil, "silent"), opts...), clock, st
}

func testScenario() domain.Scenario {
	return domain.Scenario{
		Category:        "restaurant",
		Description:     "Ordering dinner at a busy bistro",
		Role:            "waiter",
		Objectives:      []string{"practice polite requests"},
		VocabularyFocus: []string{"please", "thank you"},
	}
}

func TestCreate(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "medium", 600)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	s, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", s.UserName)
	assert.Equal(t, domain.LevelB1, s.Level)
	assert.Equal(t, domain.LevelB1, s.Scenario.Level)
	assert.False(t, s.Scenario.Assigned())
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, t0, s.StartTime)
	assert.Equal(t, 600, s.DurationSeconds)
	assert.Empty(t, s.Turns)
	assert.Equal(t, int64(1), s.Version)
}

func TestCreate_Difficulties(t *testing.T) {
	tests := []struct {
		difficulty string
		want       domain.Level
		wantErr    error
	}{
		{"easy", domain.LevelA2, nil},
		{"medium", domain.LevelB1, nil},
		{"hard", domain.LevelB2, nil},
		{" Medium ", domain.LevelB1, nil},
		{"extreme", "", domain.ErrInvalidDifficulty},
		{"", "", domain.ErrInvalidDifficulty},
	}

	for _, tt := range tests {
		t.Run(tt.difficulty, func(t *testing.T) {
			m, _, st := testManager(t)
			id, err := m.Create(context.Background(), "Ana", tt.difficulty, 600)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, st.Len(), "nothing stored on failure")
				return
			}
			require.NoError(t, err)
			s, err := m.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Level)
		})
	}
}

func TestCreate_InvalidDuration(t *testing.T) {
	m, _, _ := testManager(t)
	for _, d := range []int{0, -60} {
		_, err := m.Create(context.Background(), "Ana", "easy", d)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	m, _, _ := testManager(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := m.Create(context.Background(), "Ana", "easy", 60)
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGet_NotFound(t *testing.T) {
	m, _, _ := testManager(t)
	_, err := m.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestGet_CorruptRecord(t *testing.T) {
	m, _, st := testManager(t)
	_, err := st.Put(context.Background(), Key("bad"), []byte("{not json"), 0)
	require.NoError(t, err)

	_, err = m.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRoundTrip(t *testing.T) {
	m, clock, _ := testManager(t, WithIDGenerator(func() string { return "fixed-id" }))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "hard", 300)
	require.NoError(t, err)
	require.Equal(t, "fixed-id", id)

	_, err = m.AssignScenario(ctx, id, testScenario())
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	before, err := m.Update(ctx, id, func(s *domain.Session) error {
		_, err := s.AppendTurn(domain.Turn{
			UserInput:   "Hello, how are you?",
			AIResponse:  "Welcome! What would you like?",
			Timestamp:   clock.Now(),
			Suggestions: domain.NewSuggestions([]string{"A table for two, please."}, s.Scenario.Level),
		})
		return err
	})
	require.NoError(t, err)

	after, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(3), after.Version)
}

func TestSave_StaleSnapshotRejected(t *testing.T) {
	m, clock, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	a, err := m.Get(ctx, id)
	require.NoError(t, err)
	b, err := m.Get(ctx, id)
	require.NoError(t, err)

	_, err = a.AppendTurn(domain.Turn{UserInput: "first", AIResponse: "ok", Timestamp: clock.Now()})
	require.NoError(t, err)
	_, err = b.AppendTurn(domain.Turn{UserInput: "second", AIResponse: "ok", Timestamp: clock.Now()})
	require.NoError(t, err)

	require.NoError(t, m.Save(ctx, a))
	assert.ErrorIs(t, m.Save(ctx, b), domain.ErrConcurrentUpdate)

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Turns, 1)
	assert.Equal(t, "first", got.Turns[0].UserInput)
}

func TestSave_CreateOverExistingRejected(t *testing.T) {
	m, _, _ := testManager(t, WithIDGenerator(func() string { return "dup" }))
	ctx := context.Background()

	_, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	_, err = m.Create(ctx, "Bo", "easy", 600)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
}

func TestSave_DeletedSession(t *testing.T) {
	m, _, st := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)
	s, err := m.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, Key(id)))
	assert.ErrorIs(t, m.Save(ctx, s), domain.ErrSessionNotFound)
}

func TestUpdate_MutationErrorWritesNothing(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	_, err = m.Update(ctx, id, func(s *domain.Session) error {
		_, err := s.AppendTurn(domain.Turn{UserInput: "   "})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	s, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Version)
	assert.Empty(t, s.Turns)
}

func TestUpdate_ConcurrentWritersAllLand(t *testing.T) {
	const writers = 10
	m, clock, _ := testManager(t, WithMaxRetries(writers))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Update(ctx, id, func(s *domain.Session) error {
				_, err := s.AppendTurn(domain.Turn{
					UserInput:  fmt.Sprintf("turn from writer %d", i),
					AIResponse: "ok",
					Timestamp:  clock.Now(),
				})
				return err
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	s, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, s.Turns, writers)
	for i, turn := range s.Turns {
		assert.Equal(t, i+1, turn.Number)
	}
}

func TestUpdate_RetryLimit(t *testing.T) {
	m, _, st := testManager(t, WithMaxRetries(2))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	// Every attempt is overtaken by another writer.
	attempts := 0
	_, err = m.Update(ctx, id, func(s *domain.Session) error {
		attempts++
		rec, err := st.Get(ctx, Key(id))
		require.NoError(t, err)
		_, err = st.Put(ctx, Key(id), rec.Data, rec.Version)
		require.NoError(t, err)
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, 3, attempts)
}

func TestAssignScenario(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	s, err := m.AssignScenario(ctx, id, testScenario())
	require.NoError(t, err)
	assert.Equal(t, "restaurant", s.Scenario.Category)
	assert.Equal(t, domain.LevelA2, s.Scenario.Level, "scenario level defaults to session level")

	_, err = m.AssignScenario(ctx, id, testScenario())
	assert.ErrorIs(t, err, domain.ErrScenarioAssigned)

	_, err = m.AssignScenario(ctx, "missing", testScenario())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAssignScenario_Invalid(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	_, err = m.AssignScenario(ctx, id, domain.Scenario{Category: "travel"})
	assert.ErrorIs(t, err, domain.ErrInvalidScenario)

	s, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, s.Scenario.Assigned())
}

func TestEnd_Idempotent(t *testing.T) {
	m, clock, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, m.End(ctx, id))
	first, err := m.Get(ctx, id)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, m.End(ctx, id))
	second, err := m.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEnded, second.Status)
	require.NotNil(t, second.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *second.EndedAt)
	assert.Equal(t, first.Version, second.Version, "second End writes nothing")
}

func TestEnd_DeletesWhenNotRetained(t *testing.T) {
	m, _, st := testManager(t, WithRetainEnded(false))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, id))
	assert.Equal(t, 0, st.Len())
	_, err = m.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Ending a deleted session is a no-op.
	require.NoError(t, m.End(ctx, id))
}

func TestEnd_Missing(t *testing.T) {
	m, _, _ := testManager(t)
	assert.NoError(t, m.End(context.Background(), "never-existed"))
}

func TestCheckTimeout(t *testing.T) {
	hm := hooks.NewManager(logging.New(nil, "silent"))
	var expired []string
	hm.On(hooks.EventSessionExpired, "test", func(_ context.Context, p hooks.Payload) error {
		expired = append(expired, p.Data["sessionId"].(string))
		return nil
	})

	m, clock, _ := testManager(t, WithHooks(hm))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)

	clock.Advance(599 * time.Second)
	ok, err := m.CheckTimeout(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, err = m.CheckTimeout(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "elapsed == duration is expired")
	require.NoError(t, hm.Wait(ctx))

	s, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, s.Status)
	assert.Equal(t, []string{id}, expired)

	ok, err = m.CheckTimeout(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, hm.Wait(ctx))
	assert.Len(t, expired, 1, "expiry is reported once")
}

func TestCheckTimeout_DoesNotWaitForHooks(t *testing.T) {
	hm := hooks.NewManager(logging.New(nil, "silent"))
	release := make(chan struct{})
	hm.On(hooks.EventSessionExpired, "slow", func(ctx context.Context, _ hooks.Payload) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	m, clock, _ := testManager(t, WithHooks(hm))
	id, err := m.Create(context.Background(), "Ana", "easy", 60)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	// The request context ends as soon as the call returns; the hook keeps running.
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	ok, err := m.CheckTimeout(ctx, id)
	elapsed := time.Since(start)
	cancel()

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, elapsed, 500*time.Millisecond)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, hm.Wait(waitCtx), context.DeadlineExceeded, "hook outlives the request context")

	close(release)
	require.NoError(t, hm.Wait(context.Background()))
}

func TestCheckTimeout_EndedBeforeDeadline(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 600)
	require.NoError(t, err)
	require.NoError(t, m.End(ctx, id))

	ok, err := m.CheckTimeout(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckTimeout_NotRetained(t *testing.T) {
	m, clock, _ := testManager(t, WithRetainEnded(false))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "easy", 60)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	ok, err := m.CheckTimeout(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.CheckTimeout(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCheckTimeout_NotFound(t *testing.T) {
	m, _, _ := testManager(t)
	_, err := m.CheckTimeout(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_SQLiteBackend(t *testing.T) {
	db, err := store.Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: t0}
	m := NewManager(store.NewSQLiteStore(db), logging.New(nil, "silent"), WithClock(clock.Now))
	ctx := context.Background()

	id, err := m.Create(ctx, "Ana", "medium", 600)
	require.NoError(t, err)

	before, err := m.AssignScenario(ctx, id, testScenario())
	require.NoError(t, err)

	after, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

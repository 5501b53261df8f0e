package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func counterFetcher(calls *int32) Fetcher[int] {
	return func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(calls, 1)), nil
	}
}

func TestFetchServesFreshDataFromCache(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	c := NewClient(WithClock(clk.Now))
	defer c.Close()

	var calls int32
	q := Register(c, "k", counterFetcher(&calls), Options{StaleTime: time.Minute})

	v, err := q.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clk.Advance(30 * time.Second)
	v, err = q.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, q.Snapshot().Stale)

	clk.Advance(31 * time.Second)
	assert.True(t, q.Snapshot().Stale)
	v, err = q.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRegisterReturnsSameQuery(t *testing.T) {
	c := NewClient()
	defer c.Close()
	var calls int32
	a := Register(c, "k", counterFetcher(&calls), Options{})
	b := Register(c, "k", counterFetcher(&calls), Options{})
	assert.Same(t, a, b)

	assert.Panics(t, func() {
		Register(c, "k", func(context.Context) (string, error) { return "", nil }, Options{})
	})
}

func TestConcurrentRefetchSharesOneFetch(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls int32
	release := make(chan struct{})
	q := Register(c, "list", func(ctx context.Context) ([]int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []int{1, 2, 3}, nil
	}, Options{})

	var wg sync.WaitGroup
	results := make([][]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := q.Refetch(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool { return q.Snapshot().Fetching }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, []int{1, 2, 3}, results[0])
	assert.Equal(t, []int{1, 2, 3}, results[1])
	assert.Equal(t, []int{1, 2, 3}, q.Snapshot().Data)
}

func TestDisabledQueryNeverFetches(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls int32
	q := Register(c, "off", counterFetcher(&calls), Options{Disabled: true})

	_, err := q.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	unsub := q.Subscribe(func(State[int]) {})
	q.Invalidate()
	c.FocusChanged()
	c.Wait()
	unsub()

	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestFailedRefreshKeepsDataAndReportsError(t *testing.T) {
	c := NewClient()
	defer c.Close()

	boom := errors.New("boom")
	fail := false
	q := Register(c, "k", func(ctx context.Context) (string, error) {
		if fail {
			return "", boom
		}
		return "good", nil
	}, Options{})

	_, err := q.Refetch(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = q.Refetch(context.Background())
	require.ErrorIs(t, err, boom)

	s := q.Snapshot()
	assert.Equal(t, "good", s.Data)
	assert.Equal(t, StatusError, s.Status)
	assert.ErrorIs(t, s.Err, boom)

	_, err = q.Fetch(context.Background())
	assert.ErrorIs(t, err, boom, "an errored entry is not served as fresh")
}

func TestRetryBudget(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls int32
	q := Register(c, "k", func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return 0, errors.New("flaky")
		}
		return int(n), nil
	}, Options{Retry: 2, RetryDelay: time.Millisecond})

	v, err := q.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	atomic.StoreInt32(&calls, -10)
	_, err = q.Refetch(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, -7, atomic.LoadInt32(&calls))
}

func TestCancelDiscardsInFlightResult(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	q := Register(c, "thread", func(ctx context.Context) ([]string, error) {
		n := atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		if n == 1 {
			<-ctx.Done()
			return []string{"old"}, ctx.Err()
		}
		<-release
		return []string{"fresh"}, nil
	}, Options{})

	type result struct {
		v   []string
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := q.Refetch(context.Background())
		resCh <- result{v, err}
	}()
	<-started

	q.Cancel()
	q.SetData(func(old []string) []string { return append(append([]string(nil), old...), "optimistic") })

	// 旧读被丢弃，等待方跟随下一次读
	<-started
	assert.Equal(t, []string{"optimistic"}, q.Snapshot().Data)

	close(release)
	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, []string{"fresh"}, res.v)
	s := q.Snapshot()
	assert.Equal(t, []string{"fresh"}, s.Data)
	assert.False(t, s.Fetching)
}

func TestInvalidateSupersedesInFlightFetch(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls int32
	started := make(chan struct{}, 1)
	q := Register(c, "conversations", func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			started <- struct{}{}
			// 读到的是失效之前的服务端状态
			<-ctx.Done()
			return "before", nil
		}
		return "after", nil
	}, Options{StaleTime: time.Hour})

	resCh := make(chan string, 1)
	go func() {
		v, err := q.Refetch(context.Background())
		assert.NoError(t, err)
		resCh <- v
	}()
	<-started

	q.Invalidate()
	assert.Equal(t, "after", <-resCh)
	c.Wait()

	s := q.Snapshot()
	assert.Equal(t, "after", s.Data)
	assert.False(t, s.Stale)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestSetDataAndRestore(t *testing.T) {
	c := NewClient()
	defer c.Close()
	q := Register(c, "k", func(ctx context.Context) ([]int, error) { return []int{1, 2}, nil }, Options{StaleTime: time.Hour})
	_, err := q.Refetch(context.Background())
	require.NoError(t, err)

	var seen []State[[]int]
	unsub := q.Subscribe(func(s State[[]int]) { seen = append(seen, s) })
	defer unsub()

	prev := q.Snapshot()
	q.SetData(func(old []int) []int {
		next := make([]int, 0, len(old)+1)
		return append(append(next, old...), 99)
	})
	assert.Equal(t, []int{1, 2, 99}, q.Snapshot().Data)

	q.Restore(prev)
	restored := q.Snapshot()
	assert.Equal(t, []int{1, 2}, restored.Data)
	assert.True(t, restored.Stale, "rollback leaves the entry stale")
	require.GreaterOrEqual(t, len(seen), 2)
}

func TestInvalidateRefetchesLoadedQueries(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var loaded, never int32
	a := Register(c, "a", counterFetcher(&loaded), Options{StaleTime: time.Hour})
	Register(c, "b", counterFetcher(&never), Options{StaleTime: time.Hour})

	_, err := a.Fetch(context.Background())
	require.NoError(t, err)

	c.Invalidate("a", "b", "unknown")
	c.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&loaded))
	assert.EqualValues(t, 0, atomic.LoadInt32(&never))
	assert.False(t, a.Snapshot().Stale)
}

func TestFocusRefetchesActiveStaleQueries(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	c := NewClient(WithClock(clk.Now))
	defer c.Close()

	var focus, nofocus int32
	qa := Register(c, "focus", counterFetcher(&focus), Options{StaleTime: time.Minute, RefetchOnFocus: true})
	qb := Register(c, "nofocus", counterFetcher(&nofocus), Options{StaleTime: time.Minute})

	ua := qa.Subscribe(func(State[int]) {})
	ub := qb.Subscribe(func(State[int]) {})
	defer ua()
	defer ub()
	c.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&focus))
	require.EqualValues(t, 1, atomic.LoadInt32(&nofocus))

	c.FocusChanged()
	c.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&focus), "fresh data is not refetched on focus")

	clk.Advance(2 * time.Minute)
	c.FocusChanged()
	c.Wait()
	assert.EqualValues(t, 2, atomic.LoadInt32(&focus))
	assert.EqualValues(t, 1, atomic.LoadInt32(&nofocus))
}

func TestPollerRunsWhileObservedAndStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewClient()
	var calls int32
	q := Register(c, "poll", counterFetcher(&calls), Options{StaleTime: time.Hour, RefetchInterval: 5 * time.Millisecond})

	unsub := q.Subscribe(func(State[int]) {})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)
	unsub()
	c.Wait()

	after := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls), "poller stops with the last observer")

	q.Subscribe(func(State[int]) {})
	c.Close()

	_, err := q.Refetch(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

package querycache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"PPClient/tools/safe"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Query 单个缓存条目。所有写入只经过 fetch / SetData / Restore / Invalidate。
type Query[V any] struct {
	c     *Client
	key   string
	fetch Fetcher[V]
	opts  Options

	mu          sync.Mutex
	state       State[V]
	invalidated bool
	gen         uint64 // Cancel 时自增，旧 gen 的结果直接丢弃
	cancelFetch context.CancelFunc

	subs     map[int]func(State[V])
	nextSub  int
	pollStop chan struct{}
}

func (q *Query[V]) Key() string { return q.key }

// Snapshot returns the current state.
func (q *Query[V]) Snapshot() State[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Query[V]) snapshotLocked() State[V] {
	s := q.state
	s.Stale = q.staleLocked()
	return s
}

func (q *Query[V]) staleLocked() bool {
	if !q.state.HasData || q.invalidated {
		return true
	}
	return q.c.now().Sub(q.state.UpdatedAt) >= q.opts.StaleTime
}

// Fetch returns cached data while it is fresh, otherwise refetches.
func (q *Query[V]) Fetch(ctx context.Context) (V, error) {
	q.mu.Lock()
	if q.state.HasData && !q.staleLocked() && q.state.Err == nil {
		v := q.state.Data
		q.mu.Unlock()
		return v, nil
	}
	q.mu.Unlock()
	return q.Refetch(ctx)
}

// Refetch always goes to the fetcher. Overlapping calls share one fetch; the
// caller's ctx only bounds how long it waits, the fetch itself lives as long
// as the client so its result still lands in the cache. When the shared fetch
// is discarded by Cancel or Invalidate, the caller follows the next one.
func (q *Query[V]) Refetch(ctx context.Context) (V, error) {
	var zero V
	if q.opts.Disabled {
		return zero, ErrDisabled
	}
	for {
		if q.c.isClosed() {
			return zero, ErrClosed
		}
		q.mu.Lock()
		gen := q.gen
		q.mu.Unlock()

		ch := q.c.flights.DoChan(q.key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
			return q.runFetch(gen)
		})
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, errCancelled) {
				continue
			}
			if res.Err != nil {
				return zero, res.Err
			}
			return res.Val.(V), nil
		}
	}
}

func (q *Query[V]) runFetch(gen uint64) (V, error) {
	var zero V
	fctx, cancel := context.WithCancel(q.c.ctx)
	defer cancel()

	q.mu.Lock()
	if q.gen != gen {
		q.mu.Unlock()
		return zero, errCancelled
	}
	q.cancelFetch = cancel
	q.state.Fetching = true
	if !q.state.HasData {
		q.state.Status = StatusLoading
	}
	snap, subs := q.snapshotLocked(), q.subscribersLocked()
	q.mu.Unlock()
	notify(subs, snap)

	v, err := q.fetchWithRetry(fctx)

	q.mu.Lock()
	if q.gen != gen {
		// Cancel 之后返回的旧结果：不覆盖乐观写入
		q.mu.Unlock()
		return zero, errCancelled
	}
	q.cancelFetch = nil
	q.state.Fetching = false
	if err != nil {
		q.state.Err = err
		q.state.Status = StatusError
	} else {
		q.state.Data = v
		q.state.HasData = true
		q.state.Err = nil
		q.state.Status = StatusSuccess
		q.state.UpdatedAt = q.c.now()
		q.invalidated = false
	}
	snap, subs = q.snapshotLocked(), q.subscribersLocked()
	q.mu.Unlock()
	notify(subs, snap)

	if err != nil {
		return zero, err
	}
	return v, nil
}

func (q *Query[V]) fetchWithRetry(ctx context.Context) (V, error) {
	var out V
	if q.opts.Retry <= 0 {
		return q.fetch(ctx)
	}
	op := func() error {
		v, err := q.fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if q.opts.RetryDelay > 0 {
		eb.InitialInterval = q.opts.RetryDelay
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(q.opts.Retry)), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		q.c.log.Debug("fetch retry", zap.String("key", q.key), zap.Duration("wait", wait), zap.Error(err))
	})
	return out, err
}

// Cancel discards the result of any in-flight fetch, so an optimistic write
// made right after cannot be overwritten by an older read.
func (q *Query[V]) Cancel() {
	q.mu.Lock()
	wasFetching := q.cancelLocked()
	snap, subs := q.snapshotLocked(), q.subscribersLocked()
	q.mu.Unlock()
	if wasFetching {
		notify(subs, snap)
	}
}

// cancelLocked 丢弃当前这一代的读；返回之前是否有读在进行
func (q *Query[V]) cancelLocked() bool {
	q.gen++
	if q.cancelFetch != nil {
		q.cancelFetch()
		q.cancelFetch = nil
	}
	wasFetching := q.state.Fetching
	q.state.Fetching = false
	if q.state.Status == StatusLoading {
		q.state.Status = StatusIdle
	}
	return wasFetching
}

// SetData applies an optimistic update. fn must not mutate its argument in
// place; return a new value instead.
func (q *Query[V]) SetData(fn func(old V) V) State[V] {
	q.mu.Lock()
	q.state.Data = fn(q.state.Data)
	q.state.HasData = true
	snap, subs := q.snapshotLocked(), q.subscribersLocked()
	q.mu.Unlock()
	notify(subs, snap)
	return snap
}

// Restore writes back a snapshot taken earlier (rollback). The entry is left
// stale: reads that landed after the snapshot are no longer in it.
func (q *Query[V]) Restore(prev State[V]) State[V] {
	q.mu.Lock()
	q.state.Data = prev.Data
	q.state.HasData = prev.HasData
	q.invalidated = true
	snap, subs := q.snapshotLocked(), q.subscribersLocked()
	q.mu.Unlock()
	notify(subs, snap)
	return snap
}

// Invalidate marks the query stale and refetches it when it is worth it. A
// fetch already in flight may have read the server before the change being
// signalled, so it is discarded and the refetch is a new request.
func (q *Query[V]) Invalidate() {
	if q.invalidate() {
		q.refetchInBackground()
	}
}

func (q *Query[V]) invalidate() bool {
	q.mu.Lock()
	q.invalidated = true
	if q.state.Fetching {
		q.cancelLocked()
	}
	should := !q.opts.Disabled && (len(q.subs) > 0 || q.state.HasData)
	snap, subs := q.snapshotLocked(), q.subscribersLocked()
	q.mu.Unlock()
	notify(subs, snap)
	return should
}

func (q *Query[V]) onFocus() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.opts.RefetchOnFocus && !q.opts.Disabled && len(q.subs) > 0 && q.staleLocked()
}

func (q *Query[V]) refetchInBackground() {
	q.c.goBackground(q.key, func(ctx context.Context) error {
		_, err := q.Refetch(ctx)
		return err
	})
}

// Subscribe registers an observer and makes the query active. The first
// observer triggers a fetch when data is missing or stale and starts the
// interval poller.
func (q *Query[V]) Subscribe(fn func(State[V])) (unsubscribe func()) {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	first := len(q.subs) == 1
	needFetch := !q.opts.Disabled && q.staleLocked()
	if first && q.opts.RefetchInterval > 0 && !q.opts.Disabled {
		q.pollStop = make(chan struct{})
		q.startPoller(q.pollStop)
	}
	q.mu.Unlock()

	if first && needFetch {
		q.refetchInBackground()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subs, id)
			if len(q.subs) == 0 && q.pollStop != nil {
				close(q.pollStop)
				q.pollStop = nil
			}
			q.mu.Unlock()
		})
	}
}

func (q *Query[V]) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs) > 0
}

// startPoller must be called with q.mu held.
func (q *Query[V]) startPoller(stop chan struct{}) {
	interval := q.opts.RefetchInterval
	c := q.c
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	safe.SafeGo(func() {
		defer c.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			case <-t.C:
				if _, err := q.Refetch(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
					c.log.Debug("poll refetch failed", zap.String("key", q.key), zap.Error(err))
				}
			}
		}
	})
}

func (q *Query[V]) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pollStop != nil {
		close(q.pollStop)
		q.pollStop = nil
	}
}

func (q *Query[V]) subscribersLocked() []func(State[V]) {
	if len(q.subs) == 0 {
		return nil
	}
	out := make([]func(State[V]), 0, len(q.subs))
	for _, fn := range q.subs {
		out = append(out, fn)
	}
	return out
}

func notify[V any](subs []func(State[V]), s State[V]) {
	for _, fn := range subs {
		fn(s)
	}
}

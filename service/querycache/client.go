package querycache

import (
	"context"
	"errors"
	"sync"
	"time"

	"PPClient/logger"
	"PPClient/tools/safe"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// entry is the type-erased side of Query[V] the client drives.
type entry interface {
	invalidate() bool
	onFocus() bool
	refetchInBackground()
	stop()
}

// Client 统一管理所有查询：失效、回前台刷新、轮询生命周期。
type Client struct {
	mu      sync.Mutex
	queries map[string]entry
	closed  bool

	flights singleflight.Group
	now     func() time.Time
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ClientOption func(*Client)

// WithClock 可注入时钟（单测用）
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

func NewClient(opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		queries: make(map[string]entry),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logger.Named("querycache")
	}
	return c
}

// Register 注册（或取回已注册的）查询。同一个 key 只能对应一种数据类型。
func Register[V any](c *Client, key string, fetch Fetcher[V], opts Options) *Query[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.queries[key]; ok {
		q, ok := e.(*Query[V])
		if !ok {
			panic("querycache: key " + key + " registered with a different type")
		}
		return q
	}
	q := &Query[V]{
		c:     c,
		key:   key,
		fetch: fetch,
		opts:  opts,
		subs:  make(map[int]func(State[V])),
	}
	c.queries[key] = q
	return q
}

// Invalidate marks the given keys stale. Entries that are observed or hold
// data refetch in the background; unknown keys are ignored.
func (c *Client) Invalidate(keys ...string) {
	for _, k := range keys {
		c.mu.Lock()
		e, ok := c.queries[k]
		c.mu.Unlock()
		if !ok {
			continue
		}
		if e.invalidate() {
			e.refetchInBackground()
		}
	}
}

func (c *Client) InvalidateAll() {
	c.Invalidate(c.Keys()...)
}

// FocusChanged 应用回到前台：刷新所有开启 RefetchOnFocus 且已过期的活跃查询
func (c *Client) FocusChanged() {
	for _, e := range c.entries() {
		if e.onFocus() {
			e.refetchInBackground()
		}
	}
}

func (c *Client) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.queries))
	for k := range c.queries {
		out = append(out, k)
	}
	return out
}

// Wait blocks until every background refetch started so far has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close stops pollers and cancels in-flight fetches.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	for _, e := range c.entries() {
		e.stop()
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Client) entries() []entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entry, 0, len(c.queries))
	for _, e := range c.queries {
		out = append(out, e)
	}
	return out
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// goBackground runs f on a tracked goroutine bound to the client lifetime.
func (c *Client) goBackground(key string, f func(ctx context.Context) error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	safe.SafeGo(func() {
		defer c.wg.Done()
		if err := f(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("background refetch failed", zap.String("key", key), zap.Error(err))
		}
	})
}

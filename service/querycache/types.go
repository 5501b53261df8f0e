package querycache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDisabled is returned by a query whose Options.Disabled is set.
	ErrDisabled = errors.New("querycache: query disabled")
	// errCancelled 被 Cancel / Invalidate 丢弃的那一代读；Refetch 会接着等下一代
	errCancelled = errors.New("querycache: fetch cancelled")
	// ErrClosed is returned once the client is closed.
	ErrClosed = errors.New("querycache: client closed")
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Fetcher 读取服务端权威快照；必须是幂等读。
type Fetcher[V any] func(ctx context.Context) (V, error)

// Options 单个查询的刷新策略
type Options struct {
	StaleTime       time.Duration // 数据新鲜期，过期后可被后台刷新
	RefetchInterval time.Duration // 有观察者时的轮询周期；0 不轮询
	RefetchOnFocus  bool          // 回到前台时刷新过期数据
	Retry           int           // 失败后自动重试次数
	RetryDelay      time.Duration // 首次重试间隔（指数退避）
	Disabled        bool          // 禁用：永不执行 fetcher
}

// State is an immutable view of a query. Err is kept alongside the last good
// Data so a failed refresh is reported instead of passing stale data off as
// fresh.
type State[V any] struct {
	Data      V
	HasData   bool
	Err       error
	Status    Status
	UpdatedAt time.Time
	Stale     bool
	Fetching  bool
}

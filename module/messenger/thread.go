package messenger

import (
	"context"
	"errors"
	"sync"

	"PPClient/module/chat/model"
	"PPClient/service/querycache"
)

// Thread 与某一个对方用户的消息列表缓存。
// otherUserID <= 0 时缓存处于禁用状态，永远不会请求网络。
type Thread struct {
	otherUserID int64
	q           *querycache.Query[[]model.Message]

	// 发送中的乐观消息；轮询结果到达时追加在末尾，避免被刷新抹掉
	mu      sync.Mutex
	pending []model.Message
}

func newThread(c *querycache.Client, api API, otherUserID int64, o *Options) *Thread {
	t := &Thread{otherUserID: otherUserID}
	key := ThreadKey(otherUserID)
	fetch := func(ctx context.Context) ([]model.Message, error) {
		list, err := api.ListThread(ctx, otherUserID)
		if err != nil {
			return nil, &FetchError{Key: key, Err: err}
		}
		out := make([]model.Message, 0, len(list))
		for _, m := range list {
			m.Pending = false
			out = append(out, m)
		}
		model.SortMessages(out)
		return append(out, t.pendingMessages()...), nil
	}
	t.q = querycache.Register(c, key.String(), fetch, querycache.Options{
		StaleTime:       o.ThreadStaleTime,
		RefetchInterval: o.ThreadPollInterval,
		RefetchOnFocus:  true,
		Retry:           o.Retry,
		RetryDelay:      o.RetryDelay,
		Disabled:        otherUserID <= 0,
	})
	return t
}

func (t *Thread) OtherUserID() int64 { return t.otherUserID }
func (t *Thread) Key() CacheKey      { return ThreadKey(t.otherUserID) }
func (t *Thread) Enabled() bool      { return t.otherUserID > 0 }

// Messages returns the cached thread while fresh, otherwise fetches it.
func (t *Thread) Messages(ctx context.Context) ([]model.Message, error) {
	return t.mapErr(t.q.Fetch(ctx))
}

func (t *Thread) Refresh(ctx context.Context) ([]model.Message, error) {
	return t.mapErr(t.q.Refetch(ctx))
}

func (t *Thread) State() querycache.State[[]model.Message] {
	return t.q.Snapshot()
}

// Subscribe 有观察者时开始周期轮询
func (t *Thread) Subscribe(fn func(querycache.State[[]model.Message])) func() {
	return t.q.Subscribe(fn)
}

func (t *Thread) mapErr(list []model.Message, err error) ([]model.Message, error) {
	if errors.Is(err, querycache.ErrDisabled) {
		return nil, ErrNoCounterpart
	}
	return list, err
}

// appendPending drops any in-flight read, snapshots the entry and appends msg
// at the tail. The returned snapshot is what rollback restores.
func (t *Thread) appendPending(msg model.Message) querycache.State[[]model.Message] {
	t.q.Cancel()
	prev := t.q.Snapshot()

	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()

	t.q.SetData(func(old []model.Message) []model.Message {
		next := make([]model.Message, 0, len(old)+1)
		for _, m := range old {
			if m.ID == msg.ID {
				// 轮询结果已带上这条
				return old
			}
			next = append(next, m)
		}
		return append(next, msg)
	})
	return prev
}

// rollback restores the exact pre-send snapshot and leaves it stale.
func (t *Thread) rollback(id model.MessageID, prev querycache.State[[]model.Message]) {
	t.dropPending(id)
	t.q.Restore(prev)
}

// confirm 服务端已落库：先去掉乐观消息，再丢弃发送期间开始的读（它可能早于落库）
func (t *Thread) confirm(id model.MessageID) {
	t.dropPending(id)
	t.q.Cancel()
}

func (t *Thread) dropPending(id model.MessageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, m := range t.pending {
		if m.ID == id {
			t.pending = append(t.pending[:i:i], t.pending[i+1:]...)
			return
		}
	}
}

func (t *Thread) pendingMessages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	out := make([]model.Message, len(t.pending))
	copy(out, t.pending)
	return out
}

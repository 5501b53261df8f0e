package messenger

import (
	"context"

	"PPClient/module/chat/model"
	"PPClient/service/querycache"
)

// ConversationStore 当前用户的会话列表。只读：数据只通过拉取 / 失效刷新更新。
type ConversationStore struct {
	q *querycache.Query[[]model.Conversation]
}

func newConversationStore(c *querycache.Client, api API, o *Options) *ConversationStore {
	key := ConversationsKey()
	fetch := func(ctx context.Context) ([]model.Conversation, error) {
		list, err := api.ListConversations(ctx)
		if err != nil {
			return nil, &FetchError{Key: key, Err: err}
		}
		out := make([]model.Conversation, len(list))
		copy(out, list)
		model.SortConversations(out)
		return out, nil
	}
	q := querycache.Register(c, key.String(), fetch, querycache.Options{
		StaleTime:       o.ConversationStaleTime,
		RefetchInterval: o.ConversationPollInterval,
		RefetchOnFocus:  true,
		Retry:           o.Retry,
		RetryDelay:      o.RetryDelay,
	})
	return &ConversationStore{q: q}
}

func (s *ConversationStore) Key() CacheKey { return ConversationsKey() }

// Conversations returns the cached list while fresh, otherwise fetches it.
func (s *ConversationStore) Conversations(ctx context.Context) ([]model.Conversation, error) {
	return s.q.Fetch(ctx)
}

// Refresh always hits the API. Concurrent calls share one request.
func (s *ConversationStore) Refresh(ctx context.Context) ([]model.Conversation, error) {
	return s.q.Refetch(ctx)
}

func (s *ConversationStore) State() querycache.State[[]model.Conversation] {
	return s.q.Snapshot()
}

func (s *ConversationStore) Subscribe(fn func(querycache.State[[]model.Conversation])) func() {
	return s.q.Subscribe(fn)
}

// UnreadTotal 未读会话数（角标）
func (s *ConversationStore) UnreadTotal() int {
	n := 0
	for _, c := range s.q.Snapshot().Data {
		if c.HasUnread() {
			n++
		}
	}
	return n
}

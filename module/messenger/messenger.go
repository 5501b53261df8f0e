package messenger

import (
	"context"
	"sync"
	"time"

	"PPClient/logger"
	"PPClient/module/chat/model"
	"PPClient/module/session"
	"PPClient/service/querycache"
	"PPClient/tools/errs"

	"go.uber.org/zap"
)

// API 消息相关的三个 REST 接口。任何非成功响应都必须返回 error。
type API interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListThread(ctx context.Context, otherUserID int64) ([]model.Message, error)
	SendMessage(ctx context.Context, req model.SendRequest) (*model.SendResult, error)
}

const (
	DefaultConversationStaleTime = 90 * time.Second
	DefaultThreadStaleTime       = 60 * time.Second
	DefaultThreadPollInterval    = 30 * time.Second
	DefaultRetry                 = 3
	DefaultRetryDelay            = time.Second
)

type Options struct {
	ConversationStaleTime    time.Duration
	ConversationPollInterval time.Duration // 0: 只靠过期 + 回前台刷新
	ThreadStaleTime          time.Duration
	ThreadPollInterval       time.Duration
	Retry                    int
	RetryDelay               time.Duration
	Notifier                 Notifier
	Clock                    func() time.Time
	Logger                   *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		ConversationStaleTime: DefaultConversationStaleTime,
		ThreadStaleTime:       DefaultThreadStaleTime,
		ThreadPollInterval:    DefaultThreadPollInterval,
		Retry:                 DefaultRetry,
		RetryDelay:            DefaultRetryDelay,
		Clock:                 time.Now,
	}
}

type Option func(*Options)

// WithOptions overlays the non-zero fields of in, e.g. values from config.
func WithOptions(in Options) Option {
	return func(o *Options) {
		if in.ConversationStaleTime > 0 {
			o.ConversationStaleTime = in.ConversationStaleTime
		}
		if in.ConversationPollInterval > 0 {
			o.ConversationPollInterval = in.ConversationPollInterval
		}
		if in.ThreadStaleTime > 0 {
			o.ThreadStaleTime = in.ThreadStaleTime
		}
		if in.ThreadPollInterval > 0 {
			o.ThreadPollInterval = in.ThreadPollInterval
		}
		if in.Retry > 0 {
			o.Retry = in.Retry
		}
		if in.RetryDelay > 0 {
			o.RetryDelay = in.RetryDelay
		}
		if in.Notifier != nil {
			o.Notifier = in.Notifier
		}
		if in.Clock != nil {
			o.Clock = in.Clock
		}
		if in.Logger != nil {
			o.Logger = in.Logger
		}
	}
}

func WithStaleTimes(conversations, thread time.Duration) Option {
	return func(o *Options) {
		o.ConversationStaleTime = conversations
		o.ThreadStaleTime = thread
	}
}

func WithPollIntervals(conversations, thread time.Duration) Option {
	return func(o *Options) {
		o.ConversationPollInterval = conversations
		o.ThreadPollInterval = thread
	}
}

func WithRetry(n int, delay time.Duration) Option {
	return func(o *Options) {
		o.Retry = n
		o.RetryDelay = delay
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *Options) { o.Notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Clock = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Messenger 组合会话列表、按对方用户划分的消息缓存与发送管线，
// 共享同一个 querycache.Client。
type Messenger struct {
	sess   session.Session
	api    API
	opts   Options
	client *querycache.Client
	log    *zap.Logger

	conversations *ConversationStore
	sender        *SendPipeline

	mu      sync.Mutex
	threads map[int64]*Thread
}

func New(api API, sess session.Session, opts ...Option) (*Messenger, error) {
	if api == nil {
		return nil, errs.ErrArgs.WrapMsg("nil api")
	}
	if !sess.Valid() {
		return nil, errs.ErrUnauthorized.WrapMsg("invalid session", "userId", sess.UserID)
	}
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.Named("messenger")
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}

	m := &Messenger{
		sess:    sess,
		api:     api,
		opts:    o,
		log:     o.Logger,
		threads: make(map[int64]*Thread),
		client: querycache.NewClient(
			querycache.WithClock(o.Clock),
			querycache.WithLogger(o.Logger.Named("cache")),
		),
	}
	m.conversations = newConversationStore(m.client, api, &m.opts)
	m.sender = newSendPipeline(sess, api, m.client, m.Thread, &m.opts)
	m.log.Info("messenger ready",
		zap.Int64("userId", sess.UserID),
		zap.Duration("threadPoll", o.ThreadPollInterval))
	return m, nil
}

func (m *Messenger) Session() session.Session { return m.sess }

func (m *Messenger) Conversations() *ConversationStore { return m.conversations }

// Thread returns the cache for one counterpart, creating it on first use.
func (m *Messenger) Thread(otherUserID int64) *Thread {
	if otherUserID < 0 {
		otherUserID = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[otherUserID]; ok {
		return t
	}
	t := newThread(m.client, m.api, otherUserID, &m.opts)
	m.threads[otherUserID] = t
	return t
}

func (m *Messenger) Sender() *SendPipeline { return m.sender }

func (m *Messenger) Send(ctx context.Context, receiverID int64, content string) (*model.SendResult, error) {
	return m.sender.Send(ctx, receiverID, content)
}

func (m *Messenger) Like(ctx context.Context, receiverID int64) (*model.SendResult, error) {
	return m.sender.Like(ctx, receiverID)
}

func (m *Messenger) SendState(receiverID int64) SendState {
	return m.sender.State(receiverID)
}

// Focus 应用回到前台
func (m *Messenger) Focus() {
	m.client.FocusChanged()
}

// Invalidate is the only way to mark entries stale from outside; hint
// listeners call it with keys decoded from the wire.
func (m *Messenger) Invalidate(keys ...CacheKey) {
	m.client.Invalidate(keyStrings(keys)...)
}

// Wait blocks until background refetches started so far are done.
func (m *Messenger) Wait() {
	m.client.Wait()
}

func (m *Messenger) Close() error {
	m.client.Close()
	m.log.Debug("messenger closed")
	return nil
}

package messenger

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPClient/module/chat/model"
	"PPClient/module/session"
	"PPClient/service/querycache"

	"go.uber.org/zap"
)

// SendState 单个会话的发送状态机：Idle -> Sending -> Idle
type SendState int

const (
	SendIdle SendState = iota
	SendSending
)

func (s SendState) String() string {
	if s == SendSending {
		return "sending"
	}
	return "idle"
}

// Notifier 发送失败时的用户可见提示
type Notifier func(err *SendError)

// SendPipeline 乐观发送：先在本地插入 pending 消息，再发请求；
// 失败回滚到发送前快照，成功后让会话列表和该会话消息失效重拉。
type SendPipeline struct {
	sess    session.Session
	api     API
	client  *querycache.Client
	threads func(otherUserID int64) *Thread
	notify  Notifier
	now     func() time.Time
	log     *zap.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func newSendPipeline(sess session.Session, api API, client *querycache.Client, threads func(int64) *Thread, o *Options) *SendPipeline {
	return &SendPipeline{
		sess:     sess,
		api:      api,
		client:   client,
		threads:  threads,
		notify:   o.Notifier,
		now:      o.Clock,
		log:      o.Logger,
		inFlight: make(map[int64]struct{}),
	}
}

// Like sends the fixed like token.
func (p *SendPipeline) Like(ctx context.Context, receiverID int64) (*model.SendResult, error) {
	return p.Send(ctx, receiverID, model.LikeToken)
}

// Send 发送一条消息。同一会话同时只允许一个发送；第二次调用直接返回
// ErrSendInFlight，不会产生第二条乐观消息。
//
// The request is detached from ctx cancellation: leaving the thread view does
// not abort a send, and its outcome still lands in the cache.
func (p *SendPipeline) Send(ctx context.Context, receiverID int64, content string) (*model.SendResult, error) {
	if receiverID <= 0 {
		return nil, ErrNoCounterpart
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if !p.begin(receiverID) {
		return nil, ErrSendInFlight
	}
	defer p.end(receiverID)

	th := p.threads(receiverID)
	optimistic := model.Message{
		ID:                   model.NewTempID(),
		SenderID:             p.sess.UserID,
		SenderUsername:       p.sess.Username,
		SenderProfilePicture: p.sess.ProfilePicture,
		Content:              content,
		Pending:              true,
		CreatedAt:            p.now(),
	}
	prev := th.appendPending(optimistic)

	res, err := p.api.SendMessage(context.WithoutCancel(ctx), model.SendRequest{
		ReceiverID: receiverID,
		Content:    content,
	})
	if err != nil {
		th.rollback(optimistic.ID, prev)
		se := &SendError{ReceiverID: receiverID, Content: content, Err: err}
		p.log.Warn("send failed, rolled back",
			zap.Int64("receiverId", receiverID),
			zap.String("tempId", optimistic.ID.String()),
			zap.Error(err))
		if p.notify != nil {
			p.notify(se)
		}
		return nil, se
	}

	// 不在本地拼接服务端消息，统一失效后重拉，以服务端 ID 和顺序为准
	th.confirm(optimistic.ID)
	p.client.Invalidate(keyStrings([]CacheKey{ThreadKey(receiverID), ConversationsKey()})...)
	p.log.Debug("send confirmed", zap.Int64("receiverId", receiverID))
	if res == nil {
		res = &model.SendResult{}
	}
	return res, nil
}

// State reports whether a send is in flight for the thread.
func (p *SendPipeline) State(receiverID int64) SendState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[receiverID]; ok {
		return SendSending
	}
	return SendIdle
}

func (p *SendPipeline) begin(receiverID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[receiverID]; ok {
		return false
	}
	p.inFlight[receiverID] = struct{}{}
	return true
}

func (p *SendPipeline) end(receiverID int64) {
	p.mu.Lock()
	delete(p.inFlight, receiverID)
	p.mu.Unlock()
}

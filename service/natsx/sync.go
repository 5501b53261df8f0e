package natsx

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

func genMsgID() string {
	return uuid.NewString()
}

// Publisher 发布接口；Bus 与 NatsxSyncPublisher 都实现它
type Publisher interface {
	PublishOnce(ctx context.Context, biz, token string, data []byte, hdr map[string]string, msgID string) error
}

// NatsxSyncPublisher 同步发布器（指数退避重试，msgID 在重试间保持不变）
type NatsxSyncPublisher struct {
	P       Publisher
	Retries int
	Backoff time.Duration
}

func (sp *NatsxSyncPublisher) PublishOnce(ctx context.Context, biz, token string, payload []byte, hdr map[string]string, msgID string) error {
	if msgID == "" {
		msgID = genMsgID()
	}
	eb := backoff.NewExponentialBackOff()
	if sp.Backoff > 0 {
		eb.InitialInterval = sp.Backoff
	}
	retries := sp.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
	return backoff.Retry(func() error {
		return sp.P.PublishOnce(ctx, biz, token, payload, hdr, msgID)
	}, b)
}

package natsx

import (
	"context"

	"PPClient/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// MsgIDHeader 发布端写入、幂等中间件读取的去重 ID
const MsgIDHeader = nats.MsgIdHdr

// Bus 按 biz 路由收发：发布总是带去重 ID，订阅按 token 拼出具体 subject
// （提示是 im.hint.<userId>）。
type Bus struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

var _ Publisher = (*Bus)(nil)

// Dial 连接 NATS；mws 包在每个订阅 handler 外层
func Dial(cfg NatsxConfig, mws ...NatsxMiddleware) (*Bus, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	return &Bus{c: c, mws: mws}, nil
}

func (b *Bus) Close() error {
	return b.c.Close()
}

func (b *Bus) RegisterRoute(r NatsxRoute) error {
	return b.c.RegisterRoute(r)
}

func (b *Bus) routeFor(biz string) (NatsxRoute, error) {
	r, ok := b.c.route(biz)
	if !ok {
		return r, errs.ErrNotFound.WrapMsg("nats route", "biz", biz)
	}
	return r, nil
}

// PublishOnce 发到 route.SubjectFor(token)；msgID 为空时生成。
// JetStream 模式下服务端也按同一个 ID 去重。
func (b *Bus) PublishOnce(ctx context.Context, biz, token string, data []byte, hdr map[string]string, msgID string) error {
	r, err := b.routeFor(biz)
	if err != nil {
		return err
	}
	if msgID == "" {
		msgID = genMsgID()
	}
	msg := newMsg(r.SubjectFor(token), data, hdr, msgID)

	switch r.Mode {
	case Core:
		err = b.c.nc.PublishMsg(msg)
	case JetStreamPush:
		var ack *nats.PubAck
		ack, err = b.c.js.PublishMsg(msg, nats.Context(ctx))
		if err == nil {
			b.c.log.Debug("published", zap.String("subject", msg.Subject), zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence))
		}
	default:
		return errs.ErrArgs.WrapMsg("unsupported nats mode", "mode", r.Mode.String())
	}
	if err != nil {
		return errs.WrapMsg(err, "nats publish", "subject", msg.Subject, "msgId", msgID)
	}
	return nil
}

func newMsg(subject string, data []byte, hdr map[string]string, msgID string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Set(k, v)
	}
	msg.Header.Set(MsgIDHeader, msgID)
	return msg
}

// SubscribeTo 订阅 route.SubjectFor(token)。Core 模式 handler 出错只记日志；
// JetStream 模式出错 Nak 重投。同一 subject 重复订阅会替换旧的。
func (b *Bus) SubscribeTo(biz, token string, h NatsxHandler) error {
	r, err := b.routeFor(biz)
	if err != nil {
		return err
	}
	subject := r.SubjectFor(token)
	h = NatsxChain(h, b.mws...)

	var sub *nats.Subscription
	switch r.Mode {
	case Core:
		cb := func(m *nats.Msg) {
			if err := h(context.Background(), toMessage(m)); err != nil {
				b.c.log.Debug("core handler error", zap.String("subject", m.Subject), zap.Error(err))
			}
		}
		if r.Queue == "" {
			sub, err = b.c.nc.Subscribe(subject, cb)
		} else {
			sub, err = b.c.nc.QueueSubscribe(subject, r.Queue, cb)
		}
	case JetStreamPush:
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(r.AckWait),
			nats.MaxAckPending(r.MaxAckPending),
		}
		if r.Durable != "" {
			opts = append(opts, nats.Durable(r.Durable))
		}
		cb := func(m *nats.Msg) {
			if err := h(context.Background(), toMessage(m)); err != nil {
				_ = m.Nak()
				return
			}
			_ = m.Ack()
		}
		if r.Queue == "" {
			sub, err = b.c.js.Subscribe(subject, cb, opts...)
		} else {
			sub, err = b.c.js.QueueSubscribe(subject, r.Queue, cb, opts...)
		}
	default:
		return errs.ErrArgs.WrapMsg("unsupported nats mode", "mode", r.Mode.String())
	}
	if err != nil {
		return errs.WrapMsg(err, "nats subscribe", "subject", subject)
	}

	b.c.mu.Lock()
	if old, ok := b.c.subs[subject]; ok {
		_ = old.Unsubscribe()
	}
	b.c.subs[subject] = sub
	b.c.mu.Unlock()
	return nil
}

func (b *Bus) Unsubscribe(biz, token string) error {
	r, err := b.routeFor(biz)
	if err != nil {
		return err
	}
	subject := r.SubjectFor(token)
	b.c.mu.Lock()
	sub, ok := b.c.subs[subject]
	delete(b.c.subs, subject)
	b.c.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func toMessage(m *nats.Msg) NatsxMessage {
	return NatsxMessage{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

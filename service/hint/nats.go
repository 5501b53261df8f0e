package hint

import (
	"context"
	"strconv"
	"time"

	"PPClient/global"
	"PPClient/logger"
	"PPClient/service/natsx"

	"go.uber.org/zap"
)

// BizHint natsx 路由名
const BizHint = "hint"

// NatsListener 订阅 im.hint.<userId>
type NatsListener struct {
	bus    *natsx.Bus
	userID int64
	inv    Invalidator
	log    *zap.Logger
}

// HintRoute 提示路由；Subject 为前缀，按用户ID拼接
func HintRoute(mode natsx.NatsxMode) natsx.NatsxRoute {
	return natsx.NatsxRoute{Biz: BizHint, Subject: global.HintSubjectPrefix, Mode: mode}
}

// Middlewares 消费端中间件：恢复 panic，并按 Nats-Msg-Id 去重
func Middlewares() []natsx.NatsxMiddleware {
	return []natsx.NatsxMiddleware{
		natsx.NatsxRecoverMiddleware(),
		natsx.NatsxIdemMiddleware(natsx.NewMemIdem(5*time.Minute), 0),
	}
}

func NewNatsListener(cfg natsx.NatsxConfig, mode natsx.NatsxMode, userID int64, inv Invalidator) (*NatsListener, error) {
	bus, err := natsx.Dial(cfg, Middlewares()...)
	if err != nil {
		return nil, err
	}
	if err := bus.RegisterRoute(HintRoute(mode)); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return &NatsListener{bus: bus, userID: userID, inv: inv, log: logger.Named("hint.nats")}, nil
}

func (l *NatsListener) Handle(ctx context.Context, msg natsx.NatsxMessage) error {
	h, err := Decode(msg.Data)
	if err != nil {
		// 坏帧重投也没用，直接确认
		l.log.Debug("bad hint frame", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	Apply(l.inv, h, l.log)
	return nil
}

func (l *NatsListener) Start() error {
	return l.bus.SubscribeTo(BizHint, strconv.FormatInt(l.userID, 10), l.Handle)
}

func (l *NatsListener) Close() error {
	_ = l.bus.Unsubscribe(BizHint, strconv.FormatInt(l.userID, 10))
	return l.bus.Close()
}

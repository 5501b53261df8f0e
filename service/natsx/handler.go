package natsx

import (
	"context"
	"time"

	"PPClient/logger"
	"PPClient/tools/errs"

	"go.uber.org/zap"
)

// NatsxMessage 统一消息对象
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler 业务处理函数
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 中间件（日志、幂等、恢复等）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 组合中间件，mws[0] 在最外层
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxRecoverMiddleware 把 handler 的 panic 转成错误（JS 模式下会 Nak 重投）
func NatsxRecoverMiddleware() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errs.ErrPanic(r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// NatsxLogMiddleware 记录处理耗时和错误
func NatsxLogMiddleware(log *zap.Logger) NatsxMiddleware {
	if log == nil {
		log = logger.Named("natsx")
	}
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			if err != nil {
				log.Warn("handle failed", zap.String("subject", msg.Subject), zap.Duration("cost", time.Since(start)), zap.Error(err))
				return err
			}
			log.Debug("handled", zap.String("subject", msg.Subject), zap.Duration("cost", time.Since(start)))
			return nil
		}
	}
}

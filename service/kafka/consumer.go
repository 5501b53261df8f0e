package kafka

import (
	"context"
	"errors"
	"time"

	"PPClient/logger"
	"PPClient/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type ConsumerGroupHandler struct {
	router *Router
	log    *zap.Logger
}

func NewConsumerGroupHandler(r *Router, log *zap.Logger) *ConsumerGroupHandler {
	if log == nil {
		log = logger.Named("kafka")
	}
	return &ConsumerGroupHandler{router: r, log: log}
}

func (h *ConsumerGroupHandler) Setup(s sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group setup", zap.String("member", s.MemberID()))
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group cleanup")
	return nil
}

// ConsumeClaim 处理失败只记日志，仍然提交位点；失效提示丢一条最多多等一轮轮询
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		handler, err := h.router.Get(msg.Topic)
		if err != nil {
			h.log.Warn("no handler", zap.String("topic", msg.Topic))
		} else if err := h.handle(session.Context(), handler, msg); err != nil {
			h.log.Warn("handler error", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *ConsumerGroupHandler) handle(ctx context.Context, handler MessageHandler, msg *sarama.ConsumerMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	return handler(ctx, msg.Topic, msg.Key, msg.Value)
}

// Consume 阻塞消费 router 中的全部 topic，直到 ctx 结束
func Consume(ctx context.Context, c Config, groupID string, r *Router) error {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return err
	}
	group, err := sarama.NewConsumerGroup(c.Brokers, groupID, cfg)
	if err != nil {
		return errs.WrapMsg(err, "kafka consumer group", "group", groupID)
	}
	defer group.Close()

	h := NewConsumerGroupHandler(r, nil)
	go func() {
		for err := range group.Errors() {
			h.log.Warn("consumer group error", zap.Error(err))
		}
	}()

	topics := r.Topics()
	for {
		if err := group.Consume(ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			h.log.Warn("consume error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

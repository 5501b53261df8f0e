package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"PPClient/global"
	"PPClient/logger"
	"PPClient/module/chat/model"
	"PPClient/service/hint"
	"PPClient/service/natsx"

	"go.uber.org/zap"
)

// HubNotifier 本节点的 WebSocket 下发
type HubNotifier interface {
	NotifyUser(userID int64, h model.Hint) bool
}

// KafkaSender service/kafka.Producer 实现它
type KafkaSender interface {
	SendJSON(topic, key string, v any) error
}

// MessageSent message.sent 记录
type MessageSent struct {
	MessageID  int64     `json:"messageId"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HintRecord im.hint 记录：某个用户的一组失效键
type HintRecord struct {
	UserID int64    `json:"userId"`
	Keys   []string `json:"keys"`
	Node   string   `json:"node,omitempty"`
}

// Publisher 消息落库后的事件扇出。各通道可为空；失败只记日志，不影响发送结果。
type Publisher struct {
	Hub   HubNotifier
	Nats  natsx.Publisher
	Kafka KafkaSender
	// FanoutHints 为 true 时提示先写 Kafka，由各节点的 Relay 下发到本地连接
	FanoutHints bool
	NodeID      string

	log *zap.Logger
}

func NewPublisher() *Publisher {
	return &Publisher{log: logger.Named("events")}
}

func (p *Publisher) logger() *zap.Logger {
	if p.log == nil {
		p.log = logger.Named("events")
	}
	return p.log
}

// MessageStored 在消息写入存储之后调用
func (p *Publisher) MessageStored(ctx context.Context, msg model.Message, receiverID int64) {
	log := p.logger()
	if p.Kafka != nil {
		rec := MessageSent{
			MessageID:  msg.ID.Seq(),
			SenderID:   msg.SenderID,
			ReceiverID: receiverID,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		}
		if err := p.Kafka.SendJSON(global.MessageSentTopic, global.TopicKeyUser(receiverID), rec); err != nil {
			log.Warn("publish message.sent", zap.Int64("id", rec.MessageID), zap.Error(err))
		}
	}

	for uid, h := range model.HintsForMessage(msg.SenderID, receiverID) {
		p.hintLocal(uid, h)
		p.hintNats(ctx, uid, h)
	}
}

func (p *Publisher) hintLocal(uid int64, h model.Hint) {
	if p.FanoutHints && p.Kafka != nil {
		rec := HintRecord{UserID: uid, Keys: h.Keys, Node: p.NodeID}
		if err := p.Kafka.SendJSON(global.HintTopic, global.TopicKeyUser(uid), rec); err != nil {
			p.logger().Warn("publish hint", zap.Int64("user", uid), zap.Error(err))
		}
		return
	}
	if p.Hub != nil {
		p.Hub.NotifyUser(uid, h)
	}
}

func (p *Publisher) hintNats(ctx context.Context, uid int64, h model.Hint) {
	if p.Nats == nil {
		return
	}
	b, err := json.Marshal(h)
	if err != nil {
		return
	}
	if err := p.Nats.PublishOnce(ctx, hint.BizHint, strconv.FormatInt(uid, 10), b, nil, ""); err != nil {
		p.logger().Warn("nats hint", zap.Int64("user", uid), zap.Error(err))
	}
}

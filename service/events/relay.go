package events

import (
	"context"
	"encoding/json"

	"PPClient/global"
	"PPClient/module/chat/model"
	"PPClient/service/kafka"
	"PPClient/tools/errs"
)

// Relay 把 im.hint 记录下发到本节点的 WebSocket 连接
func Relay(hub HubNotifier) kafka.MessageHandler {
	return func(ctx context.Context, topic string, key, value []byte) error {
		var rec HintRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errs.ErrArgs.WrapMsg("bad hint record", "key", string(key))
		}
		if rec.UserID <= 0 || len(rec.Keys) == 0 {
			return nil
		}
		hub.NotifyUser(rec.UserID, model.Hint{Keys: rec.Keys})
		return nil
	}
}

// RelayGroup 每个节点独立的消费组，保证所有节点都能收到全部提示
func RelayGroup(base, nodeID string) string {
	if base == "" {
		base = "ppchat"
	}
	return base + "-hint-" + nodeID
}

// RunRelay 阻塞消费 im.hint 直到 ctx 结束
func RunRelay(ctx context.Context, c kafka.Config, nodeID string, hub HubNotifier) error {
	r := kafka.NewRouter()
	r.Handle(global.HintTopic, Relay(hub))
	return kafka.Consume(ctx, c, RelayGroup(c.GroupID, nodeID), r)
}

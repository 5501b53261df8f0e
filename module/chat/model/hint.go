package model

import "strconv"

// Hint 失效提示帧：服务端告诉客户端哪些缓存键已过期。
// 只携带键，不携带数据；客户端收到后按正常路径重新拉取。
type Hint struct {
	Keys []string `json:"keys"`
}

// HintsForMessage 一条消息落库后，发送方和接收方各自需要失效的键（以各自视角）
func HintsForMessage(senderID, receiverID int64) map[int64]Hint {
	return map[int64]Hint{
		senderID:   {Keys: []string{"conversations", "conversation:" + strconv.FormatInt(receiverID, 10)}},
		receiverID: {Keys: []string{"conversations", "conversation:" + strconv.FormatInt(senderID, 10)}},
	}
}

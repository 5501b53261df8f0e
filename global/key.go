package global

import "strconv"

const (
	// HintSubjectPrefix 失效提示的 NATS subject 前缀，完整形式 im.hint.<userId>
	HintSubjectPrefix = "im.hint"
	// MessageSentTopic 每条落库消息写一条 Kafka 记录
	MessageSentTopic = "message.sent"
	// HintTopic 多节点之间转发失效提示
	HintTopic = "im.hint"
)

func HintSubject(userID int64) string {
	return HintSubjectPrefix + "." + strconv.FormatInt(userID, 10)
}

// TopicKeyUser 按接收方分区，同一用户的记录保持顺序
func TopicKeyUser(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

package model

import (
	"sort"
	"time"
)

// Conversation 会话摘要：当前用户与某个对端的一条私信关系。
// 列表只通过整体重新拉取刷新，客户端不做逐字段修改。
type Conversation struct {
	OtherUserID     int64     `json:"otherUserId"`     // 对端用户ID（稳定标识）
	OtherUsername   string    `json:"otherUsername"`   // 展示用，可能落后于实时资料
	ProfilePicture  string    `json:"profilePicture"`  // 对端头像（快照）
	LastMessage     string    `json:"lastMessage"`     // 最近一条消息预览
	LastMessageTime time.Time `json:"lastMessageTime"` // 最近消息时间，列表按此倒序

	// 服务端可能不返回，缺省按 0 / false 处理
	UnreadCount       *int  `json:"unreadCount,omitempty"`
	HasUnreadMessages *bool `json:"hasUnreadMessages,omitempty"`
}

// Unread returns the unread count, treating an absent field as zero.
func (c Conversation) Unread() int {
	if c.UnreadCount == nil || *c.UnreadCount < 0 {
		return 0
	}
	return *c.UnreadCount
}

// HasUnread reports whether a badge should be shown. An absent flag falls
// back to the count, and an absent count is zero.
func (c Conversation) HasUnread() bool {
	if c.HasUnreadMessages != nil && *c.HasUnreadMessages {
		return true
	}
	return c.Unread() > 0
}

// SortConversations orders by LastMessageTime, newest first. Ties keep the
// server order.
func SortConversations(list []Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastMessageTime.After(list[j].LastMessageTime)
	})
}

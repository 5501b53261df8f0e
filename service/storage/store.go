package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PPClient/module/chat/model"
	"PPClient/tools/errs"
)

// User 开发服务端的用户资料（会话列表里的对方昵称、头像来自这里）
type User struct {
	ID             int64  `json:"id" bson:"_id"`
	Username       string `json:"username" bson:"username"`
	ProfilePicture string `json:"profilePicture" bson:"profilePicture"`
}

// Store 消息存储。消息 ID 全局单调递增，线程内按 ID 升序即为发送顺序。
type Store interface {
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id int64) (User, error)

	// AppendMessage 落库并更新双方的会话摘要（对方未读 +1）
	AppendMessage(ctx context.Context, senderID, receiverID int64, content string, at time.Time) (model.Message, error)
	// ListThread 返回两人之间的全部消息，按 ID 升序
	ListThread(ctx context.Context, userID, otherUserID int64) ([]model.Message, error)
	// ListConversations 返回 userID 的会话摘要，按最后消息时间倒序
	ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	// MarkRead 清零 userID 在与 otherUserID 会话中的未读数
	MarkRead(ctx context.Context, userID, otherUserID int64) error

	Close() error
}

// ErrUserNotFound is returned by GetUser for unknown ids.
var ErrUserNotFound = errs.ErrNotFound.WithDetail("user")

// DMKey 两人会话的稳定键，与参数顺序无关
func DMKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Summary 会话摘要的存储形态；各后端按 (Owner, Other) 维护一行。
type Summary struct {
	Owner           int64     `bson:"owner"`
	Other           int64     `bson:"other"`
	LastMessage     string    `bson:"lastMessage"`
	LastMessageTime time.Time `bson:"lastMessageTime"`
	Unread          int       `bson:"unread"`
}

// ToConversation joins a summary with the counterpart profile.
func (s Summary) ToConversation(other User) model.Conversation {
	unread := s.Unread
	has := unread > 0
	return model.Conversation{
		OtherUserID:       s.Other,
		OtherUsername:     other.Username,
		ProfilePicture:    other.ProfilePicture,
		LastMessage:       s.LastMessage,
		LastMessageTime:   s.LastMessageTime,
		UnreadCount:       &unread,
		HasUnreadMessages: &has,
	}
}

// Conversations resolves profiles for a set of summaries and sorts the result.
// Unknown counterparts keep an empty username rather than failing the list.
func Conversations(ctx context.Context, st Store, sums []Summary) ([]model.Conversation, error) {
	out := make([]model.Conversation, 0, len(sums))
	for _, s := range sums {
		u, err := st.GetUser(ctx, s.Other)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		if err != nil {
			u = User{ID: s.Other}
		}
		out = append(out, s.ToConversation(u))
	}
	model.SortConversations(out)
	return out, nil
}

// Validate 校验发送参数
func Validate(senderID, receiverID int64, content string) error {
	if senderID <= 0 || receiverID <= 0 {
		return errs.ErrArgs.WrapMsg("sender and receiver required", "sender", senderID, "receiver", receiverID)
	}
	if senderID == receiverID {
		return errs.ErrArgs.WrapMsg("cannot message yourself", "userId", senderID)
	}
	if content == "" {
		return errs.ErrEmptyContent.Wrap()
	}
	return nil
}

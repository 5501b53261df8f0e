package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"PPClient/tools/ids"
)

// LikeToken 点赞消息的固定内容；非空，所以总能通过发送前的非空校验。
const LikeToken = "👍"

// Kind 只用于选择发送按钮图标（发送 / 点赞），不影响请求体结构。
type Kind int

const (
	KindText Kind = iota
	KindLike
)

func (k Kind) String() string {
	if k == KindLike {
		return "like"
	}
	return "text"
}

// KindOf classifies content for affordance selection.
func KindOf(content string) Kind {
	if content == LikeToken {
		return KindLike
	}
	return KindText
}

// ComposerKind picks the icon for the composer: empty input shows like.
func ComposerKind(draft string) Kind {
	if strings.TrimSpace(draft) == "" {
		return KindLike
	}
	return KindText
}

// MessageID 服务端确认后为数字自增ID；发送中为客户端临时ID（temp-<timestamp>）。
type MessageID struct {
	seq  int64
	temp string
}

func ConfirmedID(seq int64) MessageID { return MessageID{seq: seq} }

// NewTempID generates a fresh temp-<timestamp> id.
func NewTempID() MessageID { return MessageID{temp: ids.TempID()} }

func (id MessageID) IsTemp() bool { return id.temp != "" }

// Seq is the server-assigned number; 0 for temporary ids.
func (id MessageID) Seq() int64 { return id.seq }

func (id MessageID) IsZero() bool { return id.seq == 0 && id.temp == "" }

func (id MessageID) String() string {
	if id.IsTemp() {
		return id.temp
	}
	return strconv.FormatInt(id.seq, 10)
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.IsTemp() {
		return json.Marshal(id.temp)
	}
	return []byte(strconv.FormatInt(id.seq, 10)), nil
}

func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = MessageID{}
		return nil
	}
	if b[0] != '"' {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}
		*id = ConfirmedID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.HasPrefix(s, ids.TempPrefix) {
		*id = MessageID{temp: s}
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("message id %q: %w", s, err)
	}
	*id = ConfirmedID(n)
	return nil
}

// Message 会话中的一条消息。Pending 仅在乐观插入、尚未确认时为 true。
type Message struct {
	ID                   MessageID `json:"id"`
	SenderID             int64     `json:"senderId"`
	SenderUsername       string    `json:"senderUsername"`
	SenderProfilePicture string    `json:"senderProfilePicture"`
	Content              string    `json:"content"`
	Pending              bool      `json:"pending,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// IsMine decides left/right rendering.
func (m Message) IsMine(currentUserID int64) bool { return m.SenderID == currentUserID }

// SortMessages orders confirmed messages by ascending numeric id. Temporary
// entries go after every confirmed one and keep their insertion order.
func SortMessages(list []Message) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].ID, list[j].ID
		switch {
		case a.IsTemp() && b.IsTemp():
			return false
		case a.IsTemp():
			return false
		case b.IsTemp():
			return true
		default:
			return a.seq < b.seq
		}
	})
}

// SendRequest POST /messages/send 请求体
type SendRequest struct {
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

// SendResult 发送结果；客户端不依赖 MessageID，成功后统一重新拉取。
type SendResult struct {
	MessageID *MessageID `json:"messageId,omitempty"`
}

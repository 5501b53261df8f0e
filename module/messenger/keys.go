package messenger

import (
	"strconv"
	"strings"

	"PPClient/tools/errs"
)

type keyKind uint8

const (
	kindConversations keyKind = iota + 1
	kindThread
)

const (
	conversationsKey = "conversations"
	threadKeyPrefix  = "conversation:"
)

// CacheKey 缓存键：Conversations | Thread(otherUserID)。
// 只能通过构造函数得到，避免手写字符串拼错。
type CacheKey struct {
	kind        keyKind
	otherUserID int64
}

func ConversationsKey() CacheKey { return CacheKey{kind: kindConversations} }

func ThreadKey(otherUserID int64) CacheKey {
	return CacheKey{kind: kindThread, otherUserID: otherUserID}
}

func (k CacheKey) IsConversations() bool { return k.kind == kindConversations }
func (k CacheKey) IsThread() bool        { return k.kind == kindThread }
func (k CacheKey) IsZero() bool          { return k.kind == 0 }

// OtherUserID is the counterpart of a thread key, 0 otherwise.
func (k CacheKey) OtherUserID() int64 {
	if k.kind != kindThread {
		return 0
	}
	return k.otherUserID
}

func (k CacheKey) String() string {
	switch k.kind {
	case kindConversations:
		return conversationsKey
	case kindThread:
		return threadKeyPrefix + strconv.FormatInt(k.otherUserID, 10)
	default:
		return ""
	}
}

func (k CacheKey) MarshalText() ([]byte, error) {
	if k.IsZero() {
		return nil, errs.ErrArgs.WrapMsg("zero cache key")
	}
	return []byte(k.String()), nil
}

func (k *CacheKey) UnmarshalText(b []byte) error {
	parsed, err := ParseCacheKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseCacheKey 反解 String() 的结果，供推送提示（hint）使用。
func ParseCacheKey(s string) (CacheKey, error) {
	s = strings.TrimSpace(s)
	if s == conversationsKey {
		return ConversationsKey(), nil
	}
	if rest, ok := strings.CutPrefix(s, threadKeyPrefix); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return CacheKey{}, errs.ErrArgs.WrapMsg("bad thread key", "key", s)
		}
		return ThreadKey(id), nil
	}
	return CacheKey{}, errs.ErrArgs.WrapMsg("unknown cache key", "key", s)
}

func keyStrings(keys []CacheKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.IsZero() {
			continue
		}
		out = append(out, k.String())
	}
	return out
}

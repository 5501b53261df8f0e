package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"PPClient/module/chat/model"
	"PPClient/service/storage"
	"PPClient/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Store 基于 Redis 的消息存储：
//
//	<p>:seq                   INCR 全局消息 ID
//	<p>:user:<id>             HASH 用户资料
//	<p>:dm:<a>:<b>            ZSET score=消息ID member=消息JSON
//	<p>:conv:<owner>          ZSET score=最后消息时间(ms) member=对方ID
//	<p>:sum:<owner>:<other>   HASH lastMessage / lastTime / unread
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ storage.Store = (*Store)(nil)

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "ppchat"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Open connects using c and returns a ready store.
func Open(ctx context.Context, c Config) (*Store, error) {
	rdb, err := NewClient(ctx, c)
	if err != nil {
		return nil, errs.WrapMsg(err, "redis connect", "addr", c.Addr)
	}
	return New(rdb, c.Prefix), nil
}

func (s *Store) seqKey() string          { return s.prefix + ":seq" }
func (s *Store) userKey(id int64) string { return s.prefix + ":user:" + strconv.FormatInt(id, 10) }
func (s *Store) dmKey(a, b int64) string { return s.prefix + ":dm:" + storage.DMKey(a, b) }
func (s *Store) convKey(owner int64) string {
	return s.prefix + ":conv:" + strconv.FormatInt(owner, 10)
}
func (s *Store) sumKey(owner, other int64) string {
	return s.prefix + ":sum:" + strconv.FormatInt(owner, 10) + ":" + strconv.FormatInt(other, 10)
}

func (s *Store) UpsertUser(ctx context.Context, u storage.User) error {
	return s.rdb.HSet(ctx, s.userKey(u.ID), "username", u.Username, "picture", u.ProfilePicture).Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (storage.User, error) {
	vals, err := s.rdb.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return storage.User{}, err
	}
	if len(vals) == 0 {
		return storage.User{}, storage.ErrUserNotFound
	}
	return storage.User{ID: id, Username: vals["username"], ProfilePicture: vals["picture"]}, nil
}

func (s *Store) AppendMessage(ctx context.Context, senderID, receiverID int64, content string, at time.Time) (model.Message, error) {
	if err := storage.Validate(senderID, receiverID, content); err != nil {
		return model.Message{}, err
	}
	sender, err := s.GetUser(ctx, senderID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Message{}, err
	}

	id, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return model.Message{}, errs.WrapMsg(err, "incr seq")
	}
	m := model.Message{
		ID:                   model.ConfirmedID(id),
		SenderID:             senderID,
		SenderUsername:       sender.Username,
		SenderProfilePicture: sender.ProfilePicture,
		Content:              content,
		CreatedAt:            at,
	}
	b, err := json.Marshal(m)
	if err != nil {
		return model.Message{}, err
	}

	ms := float64(at.UnixMilli())
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, s.dmKey(senderID, receiverID), redis.Z{Score: float64(id), Member: b})
	pipe.ZAdd(ctx, s.convKey(senderID), redis.Z{Score: ms, Member: receiverID})
	pipe.ZAdd(ctx, s.convKey(receiverID), redis.Z{Score: ms, Member: senderID})
	pipe.HSet(ctx, s.sumKey(senderID, receiverID), "lastMessage", content, "lastTime", at.UnixMilli())
	pipe.HSet(ctx, s.sumKey(receiverID, senderID), "lastMessage", content, "lastTime", at.UnixMilli())
	pipe.HIncrBy(ctx, s.sumKey(receiverID, senderID), "unread", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Message{}, errs.WrapMsg(err, "append message", "id", id)
	}
	return m, nil
}

func (s *Store) ListThread(ctx context.Context, userID, otherUserID int64) ([]model.Message, error) {
	vals, err := s.rdb.ZRange(ctx, s.dmKey(userID, otherUserID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(vals))
	for _, v := range vals {
		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, errs.WrapMsg(err, "decode message")
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	others, err := s.rdb.ZRevRange(ctx, s.convKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(others))
	ids := make([]int64, 0, len(others))
	for _, o := range others {
		id, err := strconv.ParseInt(o, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		cmds = append(cmds, pipe.HGetAll(ctx, s.sumKey(userID, id)))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	sums := make([]storage.Summary, 0, len(cmds))
	for i, cmd := range cmds {
		h := cmd.Val()
		ms, _ := strconv.ParseInt(h["lastTime"], 10, 64)
		unread, _ := strconv.Atoi(h["unread"])
		sums = append(sums, storage.Summary{
			Owner:           userID,
			Other:           ids[i],
			LastMessage:     h["lastMessage"],
			LastMessageTime: time.UnixMilli(ms),
			Unread:          unread,
		})
	}
	return storage.Conversations(ctx, s, sums)
}

func (s *Store) MarkRead(ctx context.Context, userID, otherUserID int64) error {
	return s.rdb.HSet(ctx, s.sumKey(userID, otherUserID), "unread", 0).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"PPClient/module/chat/model"
)

type summaryKey struct{ owner, other int64 }

// memDB 单进程内存实现；默认后端，也用于测试
type memDB struct {
	mu      sync.RWMutex
	seq     int64
	users   map[int64]User
	threads map[string][]model.Message // DMKey -> msgs (id 升序)
	sums    map[summaryKey]*Summary
	byOwner map[int64]map[int64]struct{}
}

func NewMemory() Store {
	return &memDB{
		users:   make(map[int64]User),
		threads: make(map[string][]model.Message),
		sums:    make(map[summaryKey]*Summary),
		byOwner: make(map[int64]map[int64]struct{}),
	}
}

func (db *memDB) UpsertUser(ctx context.Context, u User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
	return nil
}

func (db *memDB) GetUser(ctx context.Context, id int64) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (db *memDB) AppendMessage(ctx context.Context, senderID, receiverID int64, content string, at time.Time) (model.Message, error) {
	if err := Validate(senderID, receiverID, content); err != nil {
		return model.Message{}, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	db.seq++
	sender := db.users[senderID]
	m := model.Message{
		ID:                   model.ConfirmedID(db.seq),
		SenderID:             senderID,
		SenderUsername:       sender.Username,
		SenderProfilePicture: sender.ProfilePicture,
		Content:              content,
		CreatedAt:            at,
	}
	k := DMKey(senderID, receiverID)
	db.threads[k] = append(db.threads[k], m)

	db.touchLocked(senderID, receiverID, content, at, false)
	db.touchLocked(receiverID, senderID, content, at, true)
	return m, nil
}

func (db *memDB) touchLocked(owner, other int64, content string, at time.Time, unread bool) {
	k := summaryKey{owner, other}
	s, ok := db.sums[k]
	if !ok {
		s = &Summary{Owner: owner, Other: other}
		db.sums[k] = s
		if db.byOwner[owner] == nil {
			db.byOwner[owner] = make(map[int64]struct{})
		}
		db.byOwner[owner][other] = struct{}{}
	}
	s.LastMessage = content
	s.LastMessageTime = at
	if unread {
		s.Unread++
	}
}

func (db *memDB) ListThread(ctx context.Context, userID, otherUserID int64) ([]model.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	src := db.threads[DMKey(userID, otherUserID)]
	out := make([]model.Message, len(src))
	copy(out, src)
	return out, nil
}

func (db *memDB) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	db.mu.RLock()
	sums := make([]Summary, 0, len(db.byOwner[userID]))
	for other := range db.byOwner[userID] {
		sums = append(sums, *db.sums[summaryKey{userID, other}])
	}
	db.mu.RUnlock()

	sort.Slice(sums, func(i, j int) bool { return sums[i].Other < sums[j].Other })
	return Conversations(ctx, db, sums)
}

func (db *memDB) MarkRead(ctx context.Context, userID, otherUserID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.sums[summaryKey{userID, otherUserID}]; ok {
		s.Unread = 0
	}
	return nil
}

func (db *memDB) Close() error { return nil }

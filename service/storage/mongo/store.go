package mongo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"PPClient/data/database"
	"PPClient/data/database/mgo/mongoutil"
	"PPClient/module/chat/model"
	"PPClient/service/storage"
	"PPClient/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	tableUsers     = "users"
	tableCounters  = "counters"
	tableMessages  = "messages"
	tableSummaries = "conversation_summaries"

	messageCounter = "message"
)

type messageDoc struct {
	ID                   int64     `bson:"_id"`
	DM                   string    `bson:"dm"`
	SenderID             int64     `bson:"senderId"`
	SenderUsername       string    `bson:"senderUsername"`
	SenderProfilePicture string    `bson:"senderProfilePicture"`
	Content              string    `bson:"content"`
	CreatedAt            time.Time `bson:"createdAt"`
}

func (d messageDoc) toModel() model.Message {
	return model.Message{
		ID:                   model.ConfirmedID(d.ID),
		SenderID:             d.SenderID,
		SenderUsername:       d.SenderUsername,
		SenderProfilePicture: d.SenderProfilePicture,
		Content:              d.Content,
		CreatedAt:            d.CreatedAt,
	}
}

// Store 基于 MongoDB 的消息存储；消息 ID 来自 counters 集合的 $inc。
type Store struct {
	client    *mongoutil.Client
	users     database.Table
	counters  database.Table
	messages  database.Table
	summaries database.Table
}

var _ storage.Store = (*Store)(nil)

// Open connects and makes sure the indexes exist.
func Open(ctx context.Context, cfg mongoutil.Config) (*Store, error) {
	cli, err := mongoutil.NewMongoDB(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	db := cli.GetDB()
	s := &Store{
		client:    cli,
		users:     database.NewTable(db, tableUsers),
		counters:  database.NewTable(db, tableCounters),
		messages:  database.NewTable(db, tableMessages),
		summaries: database.NewTable(db, tableSummaries),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dm", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create index", "table", s.messages.GetTableName())
	}
	_, err = s.summaries.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "lastMessageTime", Value: -1}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create index", "table", s.summaries.GetTableName())
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, u storage.User) error {
	_, err := s.users.Collection().ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetUser(ctx context.Context, id int64) (storage.User, error) {
	var u storage.User
	err := s.users.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.User{}, storage.ErrUserNotFound
	}
	return u, err
}

func (s *Store) nextID(ctx context.Context) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.Collection().FindOneAndUpdate(ctx,
		bson.M{"_id": messageCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, errs.WrapMsg(err, "next message id")
	}
	return out.Seq, nil
}

func (s *Store) AppendMessage(ctx context.Context, senderID, receiverID int64, content string, at time.Time) (model.Message, error) {
	if err := storage.Validate(senderID, receiverID, content); err != nil {
		return model.Message{}, err
	}
	sender, err := s.GetUser(ctx, senderID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Message{}, err
	}
	id, err := s.nextID(ctx)
	if err != nil {
		return model.Message{}, err
	}

	doc := messageDoc{
		ID:                   id,
		DM:                   storage.DMKey(senderID, receiverID),
		SenderID:             senderID,
		SenderUsername:       sender.Username,
		SenderProfilePicture: sender.ProfilePicture,
		Content:              content,
		CreatedAt:            at.UTC(),
	}
	if _, err := s.messages.Collection().InsertOne(ctx, doc); err != nil {
		return model.Message{}, errs.WrapMsg(err, "insert message", "id", id)
	}

	models := []mongo.WriteModel{
		summaryUpdate(senderID, receiverID, content, doc.CreatedAt, false),
		summaryUpdate(receiverID, senderID, content, doc.CreatedAt, true),
	}
	if _, err := s.summaries.Collection().BulkWrite(ctx, models); err != nil {
		return model.Message{}, errs.WrapMsg(err, "update summaries", "id", id)
	}
	return doc.toModel(), nil
}

// summaryID 有方向：owner 视角下与 other 的会话
func summaryID(owner, other int64) string {
	return strconv.FormatInt(owner, 10) + ">" + strconv.FormatInt(other, 10)
}

func summaryUpdate(owner, other int64, content string, at time.Time, unread bool) mongo.WriteModel {
	inc := 0
	if unread {
		inc = 1
	}
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": summaryID(owner, other)}).
		SetUpdate(bson.M{
			"$set": bson.M{"owner": owner, "other": other, "lastMessage": content, "lastMessageTime": at},
			"$inc": bson.M{"unread": inc},
		}).
		SetUpsert(true)
}

func (s *Store) ListThread(ctx context.Context, userID, otherUserID int64) ([]model.Message, error) {
	cur, err := s.messages.Collection().Find(ctx,
		bson.M{"dm": storage.DMKey(userID, otherUserID)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	cur, err := s.summaries.Collection().Find(ctx,
		bson.M{"owner": userID},
		options.Find().SetSort(bson.D{{Key: "lastMessageTime", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	var sums []storage.Summary
	if err := cur.All(ctx, &sums); err != nil {
		return nil, err
	}
	return storage.Conversations(ctx, s, sums)
}

func (s *Store) MarkRead(ctx context.Context, userID, otherUserID int64) error {
	_, err := s.summaries.Collection().UpdateOne(ctx,
		bson.M{"_id": summaryID(userID, otherUserID)},
		bson.M{"$set": bson.M{"unread": 0}},
	)
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

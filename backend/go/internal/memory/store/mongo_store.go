package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PersonaGen/backend/go/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	profileCollection = "persona_profiles"
	chatCollection    = "persona_chats"
)

// profileDoc 是档案在 MongoDB 中的文档结构。answers 使用 bson.D 以保留键顺序。
type profileDoc struct {
	ID        string    `bson:"_id"`
	Answers   bson.D    `bson:"answers"`
	CreatedAt time.Time `bson:"createdAt"`
}

// chatDoc 是一个档案的全部聊天记录，每个档案一个文档。
type chatDoc struct {
	ProfileID string                `bson:"_id"`
	Messages  []*models.ChatMessage `bson:"messages"`
}

// MongoStore 把每次读改写都收敛为单文档操作，依赖 MongoDB 的单文档原子性。
type MongoStore struct {
	client   *mongo.Client
	profiles *mongo.Collection
	chats    *mongo.Collection
}

// NewMongoStore uses the given database. Close disconnects client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		profiles: db.Collection(profileCollection),
		chats:    db.Collection(chatCollection),
	}
}

func (s *MongoStore) CreateProfile(ctx context.Context, answers *models.Answers) (*models.Profile, error) {
	p := newProfile(uuid.NewString(), answers)
	doc := profileDoc{ID: p.ID, Answers: answersToDoc(p.Answers), CreatedAt: p.CreatedAt}
	if _, err := s.profiles.InsertOne(ctx, doc); err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}
	return p, nil
}

func (s *MongoStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if !validID(id) {
		return nil, notFound("get_profile", id)
	}
	var doc profileDoc
	err := s.profiles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("get_profile", id)
	}
	if err != nil {
		return nil, &Error{Op: "get_profile", Key: id, Err: err}
	}
	return doc.toProfile(), nil
}

// MergeProfileAnswers runs a single pipeline update; $mergeObjects keeps the
// existing field order and appends new keys in the order of factsToDoc.
func (s *MongoStore) MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "merge_profile", id, answersPipeline(facts, false))
}

// AddMissingAnswers merges the stored answers back over the facts, so only
// new keys survive and existing keys keep both position and value.
func (s *MongoStore) AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "add_answers", id, answersPipeline(facts, true))
}

func answersPipeline(facts models.FactSet, keepExisting bool) mongo.Pipeline {
	sources := bson.A{"$answers", bson.D{{Key: "$literal", Value: factsToDoc(facts)}}}
	if keepExisting {
		sources = append(sources, "$answers")
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "answers", Value: bson.D{{Key: "$mergeObjects", Value: sources}}},
		}}},
	}
}

func (s *MongoStore) updateAnswers(ctx context.Context, op, id string, update mongo.Pipeline) (*models.Profile, error) {
	if !validID(id) {
		return nil, notFound(op, id)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc profileDoc
	err := s.profiles.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(op, id)
	}
	if err != nil {
		return nil, &Error{Op: op, Key: id, Err: err}
	}
	return doc.toProfile(), nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, profileID string, msg *models.ChatMessage) error {
	if !validID(profileID) {
		return notFound("append_message", profileID)
	}
	if err := stampMessage(msg); err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": profileID},
		bson.M{"$push": bson.M{"messages": msg}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	return nil
}

func (s *MongoStore) GetHistory(ctx context.Context, profileID string) ([]*models.ChatMessage, error) {
	if !validID(profileID) {
		return []*models.ChatMessage{}, nil
	}
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"_id": profileID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []*models.ChatMessage{}, nil
	}
	if err != nil {
		return nil, &Error{Op: "get_history", Key: profileID, Err: err}
	}
	if doc.Messages == nil {
		return []*models.ChatMessage{}, nil
	}
	return doc.Messages, nil
}

func (s *MongoStore) ClearHistory(ctx context.Context, profileID string) error {
	if !validID(profileID) {
		return nil
	}
	if _, err := s.chats.DeleteOne(ctx, bson.M{"_id": profileID}); err != nil {
		return &Error{Op: "clear_history", Key: profileID, Err: err}
	}
	return nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (d *profileDoc) toProfile() *models.Profile {
	return &models.Profile{
		ID:        d.ID,
		Answers:   docToAnswers(d.Answers),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func answersToDoc(a *models.Answers) bson.D {
	doc := bson.D{}
	if a == nil {
		return doc
	}
	for pair := a.Oldest(); pair != nil; pair = pair.Next() {
		doc = append(doc, bson.E{Key: pair.Key, Value: pair.Value})
	}
	return doc
}

func factsToDoc(facts models.FactSet) bson.D {
	doc := bson.D{}
	for _, k := range facts.Keys() {
		doc = append(doc, bson.E{Key: k, Value: facts[k]})
	}
	return doc
}

func docToAnswers(doc bson.D) *models.Answers {
	a := models.NewAnswers()
	for _, e := range doc {
		switch v := e.Value.(type) {
		case string:
			a.Set(e.Key, v)
		default:
			a.Set(e.Key, fmt.Sprint(v))
		}
	}
	return a
}

package store

import (
	"context"
	"errors"
	"fmt"

	"PersonaGen/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// maxTxAttempts bounds the optimistic WATCH/MULTI loop of a merge. Every round
// lets at least one contender commit, so it only runs out under heavy
// contention on a single profile.
const maxTxAttempts = 64

var errContention = errors.New("too many concurrent updates")

// RedisStore keeps profiles as JSON strings and chat logs as lists:
//
//	<prefix>:profile:<id>  string
//	<prefix>:chat:<id>     list of JSON messages
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an established client. Close closes rdb.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) profileKey(id string) string {
	return fmt.Sprintf("%s:profile:%s", s.prefix, id)
}

func (s *RedisStore) chatKey(id string) string {
	return fmt.Sprintf("%s:chat:%s", s.prefix, id)
}

func (s *RedisStore) CreateProfile(ctx context.Context, answers *models.Answers) (*models.Profile, error) {
	p := newProfile(uuid.NewString(), answers)
	data, err := encodeProfile(p)
	if err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}

	ok, err := s.rdb.SetNX(ctx, s.profileKey(p.ID), data, 0).Result()
	if err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}
	if !ok {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: errors.New("profile id already exists")}
	}
	return p, nil
}

func (s *RedisStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if !validID(id) {
		return nil, notFound("get_profile", id)
	}
	data, err := s.rdb.Get(ctx, s.profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("get_profile", id)
	}
	if err != nil {
		return nil, &Error{Op: "get_profile", Key: id, Err: err}
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, &Error{Op: "get_profile", Key: id, Err: err}
	}
	return p, nil
}

func (s *RedisStore) MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "merge_profile", id, facts, overwriteAnswers)
}

func (s *RedisStore) AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "add_answers", id, facts, models.AddMissingFacts)
}

// updateAnswers retries the WATCH transaction when another writer touched the
// key between read and write.
func (s *RedisStore) updateAnswers(ctx context.Context, op, id string, facts models.FactSet, apply answerUpdate) (*models.Profile, error) {
	if !validID(id) {
		return nil, notFound(op, id)
	}
	key := s.profileKey(id)

	var merged *models.Profile
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return notFound(op, id)
		}
		if err != nil {
			return err
		}
		p, err := decodeProfile(data)
		if err != nil {
			return err
		}
		if !apply(p.Answers, facts) {
			merged = p
			return nil
		}
		out, err := encodeProfile(p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			merged = p
		}
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return merged, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound):
			return nil, err
		default:
			return nil, &Error{Op: op, Key: id, Err: err}
		}
	}
	return nil, &Error{Op: op, Key: id, Err: errContention}
}

func (s *RedisStore) AppendMessage(ctx context.Context, profileID string, msg *models.ChatMessage) error {
	if !validID(profileID) {
		return notFound("append_message", profileID)
	}
	if err := stampMessage(msg); err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	if err := s.rdb.RPush(ctx, s.chatKey(profileID), data).Err(); err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	return nil
}

func (s *RedisStore) GetHistory(ctx context.Context, profileID string) ([]*models.ChatMessage, error) {
	history := []*models.ChatMessage{}
	if !validID(profileID) {
		return history, nil
	}
	items, err := s.rdb.LRange(ctx, s.chatKey(profileID), 0, -1).Result()
	if err != nil {
		return nil, &Error{Op: "get_history", Key: profileID, Err: err}
	}
	for _, item := range items {
		msg, err := decodeMessage([]byte(item))
		if err != nil {
			return nil, &Error{Op: "get_history", Key: profileID, Err: err}
		}
		history = append(history, msg)
	}
	return history, nil
}

func (s *RedisStore) ClearHistory(ctx context.Context, profileID string) error {
	if !validID(profileID) {
		return nil
	}
	if err := s.rdb.Del(ctx, s.chatKey(profileID)).Err(); err != nil {
		return &Error{Op: "clear_history", Key: profileID, Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

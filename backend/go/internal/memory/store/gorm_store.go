package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"PersonaGen/backend/go/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 使用关系型数据库保存档案与聊天记录。
// 合并在事务中通过 SELECT ... FOR UPDATE 锁住档案行。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the persona tables and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.ProfileRecord{}, &models.ChatMessageRecord{}); err != nil {
		return nil, &Error{Op: "init", Err: fmt.Errorf("auto migrate: %w", err)}
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateProfile(ctx context.Context, answers *models.Answers) (*models.Profile, error) {
	p := newProfile(uuid.NewString(), answers)
	data, err := json.Marshal(p.Answers)
	if err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}
	rec := &models.ProfileRecord{ID: p.ID, Answers: datatypes.JSON(data), CreatedAt: p.CreatedAt}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}
	return p, nil
}

func (s *GormStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if !validID(id) {
		return nil, notFound("get_profile", id)
	}
	var rec models.ProfileRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("get_profile", id)
	}
	if err != nil {
		return nil, &Error{Op: "get_profile", Key: id, Err: err}
	}
	p, err := recordToProfile(&rec)
	if err != nil {
		return nil, &Error{Op: "get_profile", Key: id, Err: err}
	}
	return p, nil
}

func (s *GormStore) MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "merge_profile", id, facts, overwriteAnswers)
}

func (s *GormStore) AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "add_answers", id, facts, models.AddMissingFacts)
}

func (s *GormStore) updateAnswers(ctx context.Context, op, id string, facts models.FactSet, apply answerUpdate) (*models.Profile, error) {
	if !validID(id) {
		return nil, notFound(op, id)
	}

	var merged *models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.ProfileRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(op, id)
		}
		if err != nil {
			return err
		}

		p, err := recordToProfile(&rec)
		if err != nil {
			return err
		}
		merged = p
		if !apply(p.Answers, facts) {
			return nil
		}
		data, err := json.Marshal(p.Answers)
		if err != nil {
			return err
		}
		if err := tx.Model(&rec).Update("answers", datatypes.JSON(data)).Error; err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &Error{Op: op, Key: id, Err: err}
	}
	return merged, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, profileID string, msg *models.ChatMessage) error {
	if !validID(profileID) {
		return notFound("append_message", profileID)
	}
	if err := stampMessage(msg); err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	rec := &models.ChatMessageRecord{
		ProfileID: profileID,
		MessageID: msg.ID,
		Text:      msg.Text,
		Sender:    msg.Sender,
		Timestamp: msg.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	return nil
}

func (s *GormStore) GetHistory(ctx context.Context, profileID string) ([]*models.ChatMessage, error) {
	history := []*models.ChatMessage{}
	if !validID(profileID) {
		return history, nil
	}
	var recs []models.ChatMessageRecord
	err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, &Error{Op: "get_history", Key: profileID, Err: err}
	}
	for i := range recs {
		history = append(history, recs[i].ToChatMessage())
	}
	return history, nil
}

func (s *GormStore) ClearHistory(ctx context.Context, profileID string) error {
	if !validID(profileID) {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Delete(&models.ChatMessageRecord{}).Error
	if err != nil {
		return &Error{Op: "clear_history", Key: profileID, Err: err}
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordToProfile(rec *models.ProfileRecord) (*models.Profile, error) {
	answers := models.NewAnswers()
	if len(rec.Answers) > 0 {
		if err := json.Unmarshal(rec.Answers, answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &models.Profile{
		ID:        rec.ID,
		Answers:   answers,
		CreatedAt: rec.CreatedAt.UTC(),
	}, nil
}

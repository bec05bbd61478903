package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PersonaGen/backend/go/internal/models"
)

// ErrNotFound is returned when a profile does not exist or the id is not a
// valid record key.
var ErrNotFound = errors.New("store: record not found")

// Error reports a failure of the storage medium itself.
type Error struct {
	Op  string // 操作名，例如 "create_profile"
	Key string // 涉及的档案 ID，可能为空
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store 定义了档案与聊天记录的持久化接口。
// 对同一个键的读改写操作是串行化的，不同键之间互不阻塞。
type Store interface {
	// CreateProfile 保存一份新档案并分配 ID 与创建时间。
	CreateProfile(ctx context.Context, answers *models.Answers) (*models.Profile, error)
	// GetProfile 返回档案的快照；不存在时返回 ErrNotFound。
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	// MergeProfileAnswers 原子地把 facts 叠加到档案的 answers 上并返回合并后的档案。
	MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error)
	// AddMissingAnswers 原子地只写入档案中尚不存在的键，已有答案保持不变。
	AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error)
	// AppendMessage 追加一条消息，必要时创建聊天记录；会填充 msg.Timestamp，ID 为空时一并生成。
	AppendMessage(ctx context.Context, profileID string, msg *models.ChatMessage) error
	// GetHistory 按追加顺序返回聊天记录，没有记录时返回空切片。
	GetHistory(ctx context.Context, profileID string) ([]*models.ChatMessage, error)
	// ClearHistory 删除聊天记录，记录不存在时也视为成功。
	ClearHistory(ctx context.Context, profileID string) error
	Close() error
}

// validID reports whether id can be used as a record key in every backend.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00") && !strings.Contains(id, "..")
}

// answerUpdate applies facts to answers in place and reports whether the
// profile needs to be written back.
type answerUpdate func(answers *models.Answers, facts models.FactSet) bool

func overwriteAnswers(answers *models.Answers, facts models.FactSet) bool {
	models.MergeFacts(answers, facts)
	return true
}

func notFound(op, id string) error {
	return fmt.Errorf("%s %q: %w", op, id, ErrNotFound)
}

// now returns the persistence timestamp. Millisecond precision is what the
// mongo and mysql backends can round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// stampMessage fills the fields the store owns.
func stampMessage(msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return errors.New("message text is empty")
	}
	if !msg.Sender.Valid() {
		return fmt.Errorf("unknown sender %q", msg.Sender)
	}
	if msg.ID == "" {
		msg.ID = models.NewMessageID()
	}
	msg.Timestamp = now()
	return nil
}

func newProfile(id string, answers *models.Answers) *models.Profile {
	return &models.Profile{
		ID:        id,
		Answers:   models.CloneAnswers(answers),
		CreatedAt: now(),
	}
}

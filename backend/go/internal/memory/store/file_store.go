package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"PersonaGen/backend/go/internal/models"

	"github.com/google/uuid"
)

// FileStore keeps each profile and each chat log in its own JSON file:
//
//	<dir>/profiles/<id>.json
//	<dir>/chats/<id>.json
//
// Writes go through a temp file and rename, so a crash leaves either the old
// or the new version on disk.
type FileStore struct {
	profileDir string
	chatDir    string
	profiles   *keyedMutex
	chats      *keyedMutex
}

// NewFileStore creates the directory layout under dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{
		profileDir: filepath.Join(dir, "profiles"),
		chatDir:    filepath.Join(dir, "chats"),
		profiles:   newKeyedMutex(),
		chats:      newKeyedMutex(),
	}
	for _, d := range []string{s.profileDir, s.chatDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, &Error{Op: "init", Err: err}
		}
	}
	return s, nil
}

func (s *FileStore) profilePath(id string) string {
	return filepath.Join(s.profileDir, id+".json")
}

func (s *FileStore) chatPath(id string) string {
	return filepath.Join(s.chatDir, id+".json")
}

func (s *FileStore) CreateProfile(ctx context.Context, answers *models.Answers) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := newProfile(uuid.NewString(), answers)

	unlock := s.profiles.Lock(p.ID)
	defer unlock()

	data, err := encodeProfile(p)
	if err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}
	if err := writeFileAtomic(s.profilePath(p.ID), data); err != nil {
		return nil, &Error{Op: "create_profile", Key: p.ID, Err: err}
	}
	return p, nil
}

func (s *FileStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, notFound("get_profile", id)
	}
	return s.readProfile("get_profile", id)
}

func (s *FileStore) readProfile(op, id string) (*models.Profile, error) {
	data, err := os.ReadFile(s.profilePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(op, id)
	}
	if err != nil {
		return nil, &Error{Op: op, Key: id, Err: err}
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, &Error{Op: op, Key: id, Err: err}
	}
	return p, nil
}

func (s *FileStore) MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "merge_profile", id, facts, overwriteAnswers)
}

func (s *FileStore) AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	return s.updateAnswers(ctx, "add_answers", id, facts, models.AddMissingFacts)
}

func (s *FileStore) updateAnswers(ctx context.Context, op, id string, facts models.FactSet, apply answerUpdate) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, notFound(op, id)
	}

	unlock := s.profiles.Lock(id)
	defer unlock()

	p, err := s.readProfile(op, id)
	if err != nil {
		return nil, err
	}
	if !apply(p.Answers, facts) {
		return p, nil
	}

	data, err := encodeProfile(p)
	if err != nil {
		return nil, &Error{Op: op, Key: id, Err: err}
	}
	if err := writeFileAtomic(s.profilePath(id), data); err != nil {
		return nil, &Error{Op: op, Key: id, Err: err}
	}
	return p, nil
}

func (s *FileStore) AppendMessage(ctx context.Context, profileID string, msg *models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(profileID) {
		return notFound("append_message", profileID)
	}
	if err := stampMessage(msg); err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}

	unlock := s.chats.Lock(profileID)
	defer unlock()

	history, err := s.readHistory(profileID)
	if err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	history = append(history, msg)

	data, err := json.Marshal(history)
	if err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	if err := writeFileAtomic(s.chatPath(profileID), data); err != nil {
		return &Error{Op: "append_message", Key: profileID, Err: err}
	}
	return nil
}

func (s *FileStore) GetHistory(ctx context.Context, profileID string) ([]*models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(profileID) {
		return []*models.ChatMessage{}, nil
	}
	history, err := s.readHistory(profileID)
	if err != nil {
		return nil, &Error{Op: "get_history", Key: profileID, Err: err}
	}
	return history, nil
}

// readHistory returns an empty slice when the log does not exist yet.
func (s *FileStore) readHistory(profileID string) ([]*models.ChatMessage, error) {
	data, err := os.ReadFile(s.chatPath(profileID))
	if errors.Is(err, fs.ErrNotExist) {
		return []*models.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	history := []*models.ChatMessage{}
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode chat log: %w", err)
	}
	return history, nil
}

func (s *FileStore) ClearHistory(ctx context.Context, profileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(profileID) {
		return nil
	}

	unlock := s.chats.Lock(profileID)
	defer unlock()

	err := os.Remove(s.chatPath(profileID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "clear_history", Key: profileID, Err: err}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// writeFileAtomic replaces path with data via a synced temp file in the same
// directory.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Package merger 把抽取出的事实合并进档案。
package merger

import (
	"context"

	"PersonaGen/backend/go/internal/models"
)

// ProfileStore 是合并器需要的存储能力。
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error)
	AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error)
}

// Option 配置 Merger。
type Option func(*Merger)

// WithProtectedAnswers keeps existing answers: facts whose key is already in
// the profile are dropped instead of overwriting it.
func WithProtectedAnswers(protect bool) Option {
	return func(m *Merger) { m.protectExisting = protect }
}

// Merger overlays facts onto a profile through the store's atomic merge.
// By default the last merged value of a key wins.
type Merger struct {
	store           ProfileStore
	protectExisting bool
}

// New creates a Merger.
func New(store ProfileStore, opts ...Option) *Merger {
	m := &Merger{store: store}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge applies facts to the profile and returns the result. An empty fact
// set performs no write and returns the current profile.
func (m *Merger) Merge(ctx context.Context, profileID string, facts models.FactSet) (*models.Profile, error) {
	if len(facts) == 0 {
		return m.store.GetProfile(ctx, profileID)
	}
	if m.protectExisting {
		return m.store.AddMissingAnswers(ctx, profileID, facts)
	}
	return m.store.MergeProfileAnswers(ctx, profileID, facts)
}

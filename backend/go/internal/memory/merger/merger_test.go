package merger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"PersonaGen/backend/go/internal/memory/store"
	"PersonaGen/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how many merges reach the backing store.
type countingStore struct {
	*store.FileStore
	merges atomic.Int32
	adds   atomic.Int32
}

func (c *countingStore) MergeProfileAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	c.merges.Add(1)
	return c.FileStore.MergeProfileAnswers(ctx, id, facts)
}

func (c *countingStore) AddMissingAnswers(ctx context.Context, id string, facts models.FactSet) (*models.Profile, error) {
	c.adds.Add(1)
	return c.FileStore.AddMissingAnswers(ctx, id, facts)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return &countingStore{FileStore: fs}
}

func TestMerge_EmptyFactsIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
	require.NoError(t, err)

	for _, facts := range []models.FactSet{nil, {}} {
		got, err := New(s).Merge(ctx, p.ID, facts)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Answers.Len())
	}
	assert.EqualValues(t, 0, s.merges.Load())
}

func TestMerge_OverwritesAndAppends(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
	require.NoError(t, err)

	m := New(s)
	_, err = m.Merge(ctx, p.ID, models.FactSet{"pet": "cat"})
	require.NoError(t, err)
	got, err := m.Merge(ctx, p.ID, models.FactSet{"pet": "dog", "hobby": "go"})
	require.NoError(t, err)

	pet, _ := got.Answers.Get("pet")
	hobby, _ := got.Answers.Get("hobby")
	assert.Equal(t, "dog", pet)
	assert.Equal(t, "go", hobby)
	assert.EqualValues(t, 2, s.merges.Load())
}

func TestMerge_ProtectedAnswersKeepOnboardingValues(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
	require.NoError(t, err)

	m := New(s, WithProtectedAnswers(true))
	got, err := m.Merge(ctx, p.ID, models.FactSet{"hobby": "go", "pet": "cat"})
	require.NoError(t, err)

	hobby, _ := got.Answers.Get("hobby")
	pet, _ := got.Answers.Get("pet")
	assert.Equal(t, "chess", hobby)
	assert.Equal(t, "cat", pet)

	assert.EqualValues(t, 1, s.adds.Load())
	assert.EqualValues(t, 0, s.merges.Load(), "protected merges never overwrite")
}

func TestMerge_ProtectedAnswersRaceKeepsFirstValue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
	require.NoError(t, err)

	m := New(s, WithProtectedAnswers(true))
	var wg sync.WaitGroup
	for _, pet := range []string{"cat", "dog", "parrot", "fish"} {
		wg.Add(1)
		go func(pet string) {
			defer wg.Done()
			_, err := m.Merge(ctx, p.ID, models.FactSet{"pet": pet})
			assert.NoError(t, err)
		}(pet)
	}
	wg.Wait()

	first, err := s.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	pet, ok := first.Answers.Get("pet")
	require.True(t, ok)

	got, err := m.Merge(ctx, p.ID, models.FactSet{"pet": "hamster"})
	require.NoError(t, err)
	again, _ := got.Answers.Get("pet")
	assert.Equal(t, pet, again)
}

func TestMerge_UnknownProfile(t *testing.T) {
	s := newStore(t)
	_, err := New(s).Merge(context.Background(), "missing", models.FactSet{"pet": "cat"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

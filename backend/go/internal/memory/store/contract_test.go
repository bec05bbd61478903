package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"PersonaGen/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract runs the behaviour every backend must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get profile", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess", "tone", "dry"))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.GetProfile(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, []string{"hobby", "tone"}, answerKeys(got.Answers))
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("created profile does not alias caller answers", func(t *testing.T) {
		s := newStore(t)
		answers := models.AnswersFromPairs("hobby", "chess")
		created, err := s.CreateProfile(ctx, answers)
		require.NoError(t, err)

		answers.Set("hobby", "changed")
		got, err := s.GetProfile(ctx, created.ID)
		require.NoError(t, err)
		v, _ := got.Answers.Get("hobby")
		assert.Equal(t, "chess", v)
	})

	t.Run("unknown and invalid ids are not found", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"missing", "", "../etc/passwd", "a/b", `a\b`} {
			_, err := s.GetProfile(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound, "get %q", id)

			_, err = s.MergeProfileAnswers(ctx, id, models.FactSet{"k": "v"})
			assert.ErrorIs(t, err, ErrNotFound, "merge %q", id)

			history, err := s.GetHistory(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, history)
		}
	})

	t.Run("merge overwrites in place and appends new keys", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess", "city", "Lyon"))
		require.NoError(t, err)

		merged, err := s.MergeProfileAnswers(ctx, created.ID, models.FactSet{"pet": "cat", "city": "Paris"})
		require.NoError(t, err)
		assert.Equal(t, []string{"hobby", "city", "pet"}, answerKeys(merged.Answers))

		got, err := s.GetProfile(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"hobby", "city", "pet"}, answerKeys(got.Answers))
		city, _ := got.Answers.Get("city")
		assert.Equal(t, "Paris", city)
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("add missing answers keeps existing values", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess", "city", "Lyon"))
		require.NoError(t, err)

		got, err := s.AddMissingAnswers(ctx, created.ID, models.FactSet{"pet": "cat", "city": "Paris"})
		require.NoError(t, err)
		assert.Equal(t, []string{"hobby", "city", "pet"}, answerKeys(got.Answers))
		city, _ := got.Answers.Get("city")
		assert.Equal(t, "Lyon", city)

		stored, err := s.GetProfile(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"hobby", "city", "pet"}, answerKeys(stored.Answers))

		_, err = s.AddMissingAnswers(ctx, "missing", models.FactSet{"k": "v"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent adds of one key keep the first value", func(t *testing.T) {
		s := newStore(t)
		p, err := s.CreateProfile(ctx, models.AnswersFromPairs("seed", "x"))
		require.NoError(t, err)

		const writers = 12
		var wg sync.WaitGroup
		results := make(chan string, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got, err := s.AddMissingAnswers(ctx, p.ID, models.FactSet{"pet": fmt.Sprintf("pet%02d", i)})
				if !assert.NoError(t, err) {
					return
				}
				v, _ := got.Answers.Get("pet")
				results <- v
			}(i)
		}
		wg.Wait()
		close(results)

		stored, err := s.GetProfile(ctx, p.ID)
		require.NoError(t, err)
		winner, ok := stored.Answers.Get("pet")
		require.True(t, ok)
		// every writer saw the same surviving value
		for v := range results {
			assert.Equal(t, winner, v)
		}
	})

	t.Run("conversation round trip", func(t *testing.T) {
		s := newStore(t)
		p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
		require.NoError(t, err)

		user := models.NewChatMessage(models.SenderUser, "hi")
		require.NoError(t, s.AppendMessage(ctx, p.ID, user))
		assert.False(t, user.Timestamp.IsZero())

		bot := &models.ChatMessage{Text: "hello!", Sender: models.SenderBot}
		require.NoError(t, s.AppendMessage(ctx, p.ID, bot))
		assert.NotEmpty(t, bot.ID, "store fills a missing id")

		history, err := s.GetHistory(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, user.ID, history[0].ID)
		assert.Equal(t, models.SenderUser, history[0].Sender)
		assert.Equal(t, "hello!", history[1].Text)
		assert.Equal(t, models.SenderBot, history[1].Sender)
	})

	t.Run("append rejects malformed messages", func(t *testing.T) {
		s := newStore(t)
		err := s.AppendMessage(ctx, "p1", &models.ChatMessage{Text: "  ", Sender: models.SenderUser})
		var storeErr *Error
		assert.ErrorAs(t, err, &storeErr)

		err = s.AppendMessage(ctx, "p1", &models.ChatMessage{Text: "hi", Sender: "system"})
		assert.ErrorAs(t, err, &storeErr)
	})

	t.Run("sequential appends keep order", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 30; i++ {
			require.NoError(t, s.AppendMessage(ctx, "p-order", models.NewChatMessage(models.SenderUser, fmt.Sprintf("m%d", i))))
		}
		history, err := s.GetHistory(ctx, "p-order")
		require.NoError(t, err)
		require.Len(t, history, 30)
		for i, msg := range history {
			assert.Equal(t, fmt.Sprintf("m%d", i), msg.Text)
		}
	})

	t.Run("concurrent merges lose no update", func(t *testing.T) {
		s := newStore(t)
		p, err := s.CreateProfile(ctx, models.AnswersFromPairs("seed", "x"))
		require.NoError(t, err)

		const writers = 12
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.MergeProfileAnswers(ctx, p.ID, models.FactSet{fmt.Sprintf("k%02d", i): "v"})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetProfile(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, writers+1, got.Answers.Len())
		for i := 0; i < writers; i++ {
			_, ok := got.Answers.Get(fmt.Sprintf("k%02d", i))
			assert.True(t, ok, "k%02d", i)
		}
	})

	t.Run("concurrent appends are all kept", func(t *testing.T) {
		s := newStore(t)
		const writers, perWriter = 6, 5
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					msg := models.NewChatMessage(models.SenderUser, fmt.Sprintf("w%d-%d", w, i))
					assert.NoError(t, s.AppendMessage(ctx, "p-shared", msg))
				}
			}(w)
		}
		wg.Wait()

		history, err := s.GetHistory(ctx, "p-shared")
		require.NoError(t, err)
		require.Len(t, history, writers*perWriter)

		// per-writer order survives interleaving
		next := make(map[int]int)
		for _, msg := range history {
			var w, i int
			_, err := fmt.Sscanf(msg.Text, "w%d-%d", &w, &i)
			require.NoError(t, err)
			assert.Equal(t, next[w], i)
			next[w]++
		}
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AppendMessage(ctx, "p-clear", models.NewChatMessage(models.SenderUser, "hi")))

		require.NoError(t, s.ClearHistory(ctx, "p-clear"))
		require.NoError(t, s.ClearHistory(ctx, "p-clear"))
		require.NoError(t, s.ClearHistory(ctx, "never-existed"))

		history, err := s.GetHistory(ctx, "p-clear")
		require.NoError(t, err)
		assert.NotNil(t, history)
		assert.Empty(t, history)
	})

	t.Run("clear keeps the profile", func(t *testing.T) {
		s := newStore(t)
		p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
		require.NoError(t, err)
		require.NoError(t, s.AppendMessage(ctx, p.ID, models.NewChatMessage(models.SenderUser, "hi")))
		require.NoError(t, s.ClearHistory(ctx, p.ID))

		_, err = s.GetProfile(ctx, p.ID)
		assert.NoError(t, err)
	})
}

func answerKeys(a *models.Answers) []string {
	var keys []string
	for pair := a.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("wrapped: %w", &Error{Op: "append_message", Key: "p1", Err: cause})

	assert.ErrorIs(t, err, cause)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "append_message", storeErr.Op)
	assert.Equal(t, "store: append_message p1: disk full", storeErr.Error())
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("0b6c3f0e-8f43-4b9e-9d7e-2d0c4b1a5e77"))
	assert.False(t, validID(""))
	assert.False(t, validID(".."))
	assert.False(t, validID("a/../b"))
	assert.False(t, validID("nul\x00byte"))
}

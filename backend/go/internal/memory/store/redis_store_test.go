package store

import (
	"context"
	"testing"

	"PersonaGen/backend/go/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(rdb, "test")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Contract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	p, err := s.CreateProfile(ctx, models.AnswersFromPairs("hobby", "chess"))
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, p.ID, models.NewChatMessage(models.SenderUser, "hi")))

	raw, err := mr.Get("test:profile:" + p.ID)
	require.NoError(t, err)
	assert.Contains(t, raw, `"answers":{"hobby":"chess"}`)

	items, err := mr.List("test:chat:" + p.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, s.ClearHistory(ctx, p.ID))
	assert.False(t, mr.Exists("test:chat:"+p.ID))
}

func TestRedisStore_UnavailableIsStoreError(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.GetProfile(ctx, "p1")
	var storeErr *Error
	assert.ErrorAs(t, err, &storeErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}

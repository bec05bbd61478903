package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PersonaGen/backend/go/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestTurnPublisher_KeysByProfile(t *testing.T) {
	w := &fakeWriter{}
	p := &TurnPublisher{writer: w, topic: "persona_turns"}

	event := &models.TurnEvent{
		ProfileID:    "p1",
		UserMessage:  &models.ChatMessage{ID: "u1", Text: "hi", Sender: models.SenderUser},
		BotMessage:   &models.ChatMessage{ID: "b1", Text: "hello", Sender: models.SenderBot},
		FactsLearned: models.FactSet{"pet": "cat"},
		OccurredAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.PublishTurn(context.Background(), event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "persona_turns", w.msgs[0].Topic)
	assert.Equal(t, "p1", string(w.msgs[0].Key))

	var decoded models.TurnEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "hello", decoded.BotMessage.Text)
	assert.Equal(t, "cat", decoded.FactsLearned["pet"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestTurnPublisher_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &TurnPublisher{writer: &fakeWriter{err: boom}, topic: "t"}

	err := p.PublishTurn(context.Background(), &models.TurnEvent{ProfileID: "p1"})
	assert.ErrorIs(t, err, boom)
}

package events

import (
	"context"
	"errors"
	"testing"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []models.PortfolioEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, event models.PortfolioEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanout(t *testing.T) {
	event := models.PortfolioEvent{EventID: uuid.New(), UserID: uuid.New(), Op: models.OpAssetAdded}

	t.Run("all_receive", func(t *testing.T) {
		a, b := &recorder{}, &recorder{}
		err := NewFanout(a, nil, b).Publish(context.Background(), event)

		require.NoError(t, err)
		assert.Len(t, a.events, 1)
		assert.Len(t, b.events, 1)
	})

	t.Run("failure_does_not_stop_others", func(t *testing.T) {
		boom := errors.New("broker down")
		a, b := &recorder{err: boom}, &recorder{}
		err := NewFanout(a, b).Publish(context.Background(), event)

		assert.ErrorIs(t, err, boom)
		assert.Len(t, b.events, 1)
		assert.Equal(t, event.EventID, b.events[0].EventID)
	})

	t.Run("empty", func(t *testing.T) {
		assert.NoError(t, NewFanout().Publish(context.Background(), event))
		assert.NoError(t, Discard{}.Publish(context.Background(), event))
	})
}

package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	event := models.PortfolioEvent{
		EventID: uuid.New(),
		UserID:  uuid.New(),
		Op:      models.OpAssetRemoved,
		Index:   2,
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	msg, err := encode(event)
	require.NoError(t, err)

	assert.Equal(t, event.UserID.String(), string(msg.Key))
	assert.Equal(t, event.Time, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, models.OpAssetRemoved, string(msg.Headers[0].Value))

	var decoded models.PortfolioEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, 2, decoded.Index)
}

func TestNewProducer(t *testing.T) {
	cfg := config.KafkaConfig{
		Brokers:      []string{"kafka-1:9092", "kafka-2:9092"},
		Topic:        "portfolio.events",
		BatchTimeout: time.Second,
		RequiredAcks: 1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}

	p := NewProducer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer p.Close()

	assert.Equal(t, "portfolio.events", p.writer.Topic)
	assert.NotNil(t, p.writer.Addr)
	assert.Equal(t, 3, p.writer.MaxAttempts)
	assert.True(t, p.writer.Async)
}

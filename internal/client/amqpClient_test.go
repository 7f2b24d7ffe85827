package client

import (
	"encoding/json"
	"testing"
	"time"

	"order-status-tracker/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatusPublishing(t *testing.T) {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	event := model.StatusEvent{
		OrderID:    456,
		OldStatus:  model.StatusCooking,
		NewStatus:  model.StatusReady,
		Version:    3,
		OccurredAt: at,
	}

	msg, err := newStatusPublishing(event)
	require.NoError(t, err)

	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "456", msg.CorrelationId)
	assert.NotEmpty(t, msg.MessageId)
	assert.Equal(t, "READY", msg.Headers["x-status"])
	assert.Equal(t, int64(3), msg.Headers["x-version"])

	var decoded model.StatusEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event.NewStatus, decoded.NewStatus)
	assert.Equal(t, event.Version, decoded.Version)
	assert.True(t, at.Equal(decoded.OccurredAt))
}

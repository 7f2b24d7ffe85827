package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"order-status-tracker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.Log{Level: "warn", Format: "json"}, &buf)

	l.Info("hidden")
	l.Warn("shown", "order_id", 456)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, float64(456), line["order_id"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.Log{Level: "debug", Format: "text"}, &buf)

	l.Debug("fanout done", "delivered", 2)
	assert.Contains(t, buf.String(), "msg=\"fanout done\"")
	assert.Contains(t, buf.String(), "delivered=2")
}

func TestFromContext(t *testing.T) {
	base := Discard()
	scoped := base.With("request_id", "abc")

	assert.Same(t, base, FromContext(context.Background(), base))
	assert.Same(t, scoped, FromContext(Inject(context.Background(), scoped), base))
	assert.NotNil(t, FromContext(context.Background(), nil))
}

package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/fieldops/pkg/logger"
)

func TestWithContext_AddsKeys(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Default()
	logger.SetDefault(logger.New(&buf, "debug"))
	t.Cleanup(func() { logger.SetDefault(prev) })

	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx = logger.WithActorID(ctx, "tech-7")
	ctx = logger.WithService(ctx, "visits")
	logger.DebugContext(ctx, "hello", "visit_id", "v-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "tech-7", line["actor_id"])
	assert.Equal(t, "visits", line["service"])
	assert.Equal(t, "v-1", line["visit_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, "warn")
	l.Info("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithActorID_EmptyIsNoop(t *testing.T) {
	ctx := logger.WithActorID(context.Background(), "")
	assert.Nil(t, ctx.Value(logger.ActorIDKey))
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestNewLogger_AddsRealtimeContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "petcare", Environment: "test"})

	owner := int64(3)
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithConnectionID(ctx, "conn-1")
	ctx = WithCaller(ctx, "customer", &owner)

	logger.InfoContext(ctx, "subscribed")

	line := decodeLine(t, &buf)
	assert.Equal(t, "petcare", line["service"])
	assert.Equal(t, "test", line["environment"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "conn-1", line["connection_id"])
	assert.Equal(t, "customer", line["role"])
	assert.Equal(t, "3", line["owner_id"])

	_, err := time.Parse(time.RFC3339Nano, line["time"].(string))
	assert.NoError(t, err)
}

func TestNewLogger_GuestHasNoOwner(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Output: &buf})

	logger.InfoContext(WithCaller(context.Background(), "guest", nil), "connected")

	line := decodeLine(t, &buf)
	assert.Equal(t, "guest", line["role"])
	assert.NotContains(t, line, "owner_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	assert.Same(t, base, LoggerFromContext(context.Background(), base))

	LoggerFromContext(WithConnectionID(context.Background(), "conn-9"), base).Info("closed")
	assert.Equal(t, "conn-9", decodeLine(t, &buf)["connection_id"])
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestLogRequest_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	l := &HTTPRequestLogger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	l.LogRequest(context.Background(), "GET", "/api/v1/stream", 503, time.Millisecond, 0, "10.0.0.1", "curl")

	line := decodeLine(t, &buf)
	assert.Equal(t, "ERROR", line["level"])
	assert.EqualValues(t, 503, line["status_code"])
}

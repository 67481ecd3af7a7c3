package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewCorrelationHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", SessionID(ctx))
	assert.Equal(t, "", JobID(ctx))
	assert.Equal(t, "", Perspective(ctx))

	ctx = WithIDs(ctx, "dash-1", "job-7", "control-flow")
	assert.Equal(t, "dash-1", SessionID(ctx))
	assert.Equal(t, "job-7", JobID(ctx))
	assert.Equal(t, "control-flow", Perspective(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithJobID(context.Background(), "job-abc")
	LogWith(ctx, logger).Info("overlay batch applied")

	out := buf.String()
	assert.Contains(t, out, "job_id=job-abc")
	assert.NotContains(t, out, "session_id")
	assert.NotContains(t, out, "perspective")
	assert.Contains(t, out, "overlay batch applied")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf)

	ctx := WithIDs(context.Background(), "dash-auto", "job-auto", "p-auto")
	logger.InfoContext(ctx, "auto inject")

	out := buf.String()
	assert.Contains(t, out, `"session_id":"dash-auto"`)
	assert.Contains(t, out, `"job_id":"job-auto"`)
	assert.Contains(t, out, `"perspective":"p-auto"`)
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf).InfoContext(context.Background(), "bare log")

	out := buf.String()
	assert.NotContains(t, out, "session_id")
	assert.NotContains(t, out, "job_id")
	assert.Contains(t, out, "bare log")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "overlay")}).WithGroup("batch"))

	logger.InfoContext(WithPerspective(context.Background(), "p-1"), "grouped", "reports", 3)

	out := buf.String()
	assert.Contains(t, out, `"component":"overlay"`)
	assert.Contains(t, out, "p-1")
	assert.Contains(t, out, `"reports":3`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

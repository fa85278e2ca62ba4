package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testHandler) lastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(lines[i], &m); err == nil {
			return m
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds event, event_id, and namespace", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "order.created", "evt-1", "billing")
		enriched.Info("dispatching")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "order.created", record["event"])
		assert.Equal(t, "evt-1", record["event_id"])
		assert.Equal(t, "billing", record["namespace"])
		assert.Equal(t, "dispatching", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "a", "b", "c"))
	})
}

func TestLogSubscription(t *testing.T) {
	h := newTestHandler()
	LogSubscription(slog.New(h), "sub-1", "ping", "", "high", true)

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "callback registered", record["msg"])
	assert.Equal(t, "sub-1", record["subscription_id"])
	assert.Equal(t, "high", record["priority"])
	assert.Equal(t, true, record["once"])
}

func TestLogUnregister(t *testing.T) {
	h := newTestHandler()
	LogUnregister(slog.New(h), "ping", "ns", 3)

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "callbacks unregistered", record["msg"])
	assert.Equal(t, float64(3), record["removed"])
}

func TestLogEmit(t *testing.T) {
	h := newTestHandler()
	LogEmit(slog.New(h), "ping", 4, 1, 2.5)

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "event emitted", record["msg"])
	assert.Equal(t, float64(4), record["invoked"])
	assert.Equal(t, float64(1), record["failed"])
	assert.Equal(t, 2.5, record["duration_ms"])
}

func TestLogCallbackError(t *testing.T) {
	h := newTestHandler()
	LogCallbackError(slog.New(h), "boom", "sub-9", errors.New("exploded"))

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "callback failed", record["msg"])
	assert.Equal(t, "sub-9", record["subscription_id"])
	assert.Equal(t, "exploded", record["error"])
}

func TestLogRecorderError(t *testing.T) {
	h := newTestHandler()
	LogRecorderError(slog.New(h), "event_emitted", errors.New("disk full"))

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "recorder failed", record["msg"])
	assert.Equal(t, "event_emitted", record["operation"])
	assert.Equal(t, "disk full", record["error"])
}

func TestNilLoggerHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		LogSubscription(nil, "", "", "", "", false)
		LogUnregister(nil, "", "", 0)
		LogEmit(nil, "", 0, 0, 0)
		LogCallbackError(nil, "", "", errors.New("x"))
		LogRecorderError(nil, "", errors.New("x"))
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(10 * time.Millisecond)
	d1 := done()
	assert.GreaterOrEqual(t, d1, 10.0)

	time.Sleep(2 * time.Millisecond)
	assert.Greater(t, done(), d1)
}

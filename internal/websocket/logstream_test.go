package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swecc-uw/swecc-sockets/internal/containerlogs"
)

type fakeReadCloser struct {
	*bytes.Reader
	closed bool
}

func (f *fakeReadCloser) Close() error {
	f.closed = true
	return nil
}

type fakeSource struct {
	body    string
	openErr error
}

func (f *fakeSource) Open(ctx context.Context, containerName string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeReadCloser{Reader: bytes.NewReader([]byte(f.body))}, nil
}

func newLogsConn(t *testing.T, r *Registry, userID uint64, groups map[string]struct{}) *Connection {
	t.Helper()
	conn, err := r.Register(ServiceLogs, userID, "admin", groups, nil)
	require.NoError(t, err)
	return conn
}

func TestLogStreamHandler_StartAndStopIsIdempotent(t *testing.T) {
	r := NewRegistry()
	groups := map[string]struct{}{"is_admin": {}}
	conn := newLogsConn(t, r, 1, groups)

	h := NewLogStreamHandler(r, &fakeSource{body: "line one\nline two\n"})

	h.startLogs(conn, 1, "c1")
	started, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, TypeLogsStarted, started.Type)

	line1, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, TypeLogLine, line1.Type)
	assert.Equal(t, "line one", line1.Message)

	line2, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, "line two", line2.Message)

	h.stopLogs(1)
	h.mu.Lock()
	_, exists := h.streams[1]
	h.mu.Unlock()
	assert.False(t, exists)

	// stop on an idle user is a no-op
	h.stopLogs(1)
}

func TestLogStreamHandler_SecondStartCancelsFirst(t *testing.T) {
	r := NewRegistry()
	groups := map[string]struct{}{"is_admin": {}}
	conn := newLogsConn(t, r, 1, groups)

	h := NewLogStreamHandler(r, &fakeSource{body: ""})

	h.startLogs(conn, 1, "c1")
	_, _ = drainFrame(t, conn, time.Second) // logs_started

	h.startLogs(conn, 1, "c2")
	_, _ = drainFrame(t, conn, time.Second) // logs_started for c2

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Contains(t, h.streams, uint64(1))
	assert.Equal(t, "c2", h.streams[1].containerID)
}

func TestLogStreamHandler_NotFoundSendsErrorFrame(t *testing.T) {
	r := NewRegistry()
	groups := map[string]struct{}{"is_admin": {}}
	conn := newLogsConn(t, r, 1, groups)

	h := NewLogStreamHandler(r, &fakeSource{openErr: containerlogs.ErrNotFound})

	h.startLogs(conn, 1, "ghost")
	f, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, TypeError, f.Type)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.NotContains(t, h.streams, uint64(1))
}

func TestLogStreamHandler_UnauthorizedMessageRejected(t *testing.T) {
	r := NewRegistry()
	conn := newLogsConn(t, r, 1, nil) // no is_admin / is_api_key group

	h := NewLogStreamHandler(r, &fakeSource{})

	err := h.onMessage(context.Background(), Event{
		Conn:   conn,
		UserID: 1,
		Data:   InboundFrame{Type: "start_logs"},
	})
	require.NoError(t, err)

	f, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, TypeError, f.Type)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.streams)
}

// TestLogStreamHandler_OnMessage_ParsesFlatContainerName drives onMessage
// through json.Unmarshal with the flat client frame shape scenario 4 (§8)
// and the original's container_logs_handler.py describe (container_name as
// a top-level field, not nested under a "data" object).
func TestLogStreamHandler_OnMessage_ParsesFlatContainerName(t *testing.T) {
	r := NewRegistry()
	groups := map[string]struct{}{"is_admin": {}}
	conn := newLogsConn(t, r, 1, groups)

	h := NewLogStreamHandler(r, &fakeSource{body: "hello\n"})

	var startFrame InboundFrame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"start_logs","container_name":"c1"}`), &startFrame))
	require.NoError(t, h.onMessage(context.Background(), Event{Conn: conn, UserID: 1, Data: startFrame}))

	started, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, TypeLogsStarted, started.Type)

	line, ok := drainFrame(t, conn, time.Second)
	require.True(t, ok)
	assert.Equal(t, "hello", line.Message)

	h.mu.Lock()
	require.Contains(t, h.streams, uint64(1))
	assert.Equal(t, "c1", h.streams[1].containerID)
	h.mu.Unlock()

	var stopFrame InboundFrame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"stop_logs"}`), &stopFrame))
	require.NoError(t, h.onMessage(context.Background(), Event{Conn: conn, UserID: 1, Data: stopFrame}))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.streams)
}

package websocket

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/swecc-uw/swecc-sockets/internal/apperrors"
	"github.com/swecc-uw/swecc-sockets/internal/containerlogs"
	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// LogSource opens a cancellable stream of log lines for a named container.
// containerlogs.Source satisfies this.
type LogSource interface {
	Open(ctx context.Context, containerName string) (io.ReadCloser, error)
}

type logStream struct {
	containerID string
	cancel      context.CancelFunc
	done        chan struct{}
}

// LogStreamHandler drives the per-user log-stream state machine:
// Idle -> (start_logs) -> Running -> (stop_logs | runtime_end | cancellation | disconnect) -> Idle
// (§4.7). At most one stream per user; starting a second cancels the first.
type LogStreamHandler struct {
	registry *Registry
	source   LogSource

	mu      sync.Mutex
	streams map[uint64]*logStream
}

// NewLogStreamHandler builds a LogStreamHandler backed by source.
func NewLogStreamHandler(registry *Registry, source LogSource) *LogStreamHandler {
	return &LogStreamHandler{
		registry: registry,
		source:   source,
		streams:  make(map[uint64]*logStream),
	}
}

// Register wires the handler's three entry points onto emitter.
func (h *LogStreamHandler) Register(emitter *Emitter) {
	emitter.On(EventConnect, h.onConnect)
	emitter.On(EventMessage, h.onMessage)
	emitter.On(EventDisconnect, h.onDisconnect)
}

func (h *LogStreamHandler) onConnect(ctx context.Context, e Event) error {
	e.Conn.Send(Frame{
		Type:    TypeSystem,
		Message: "Log stream service: Connected as " + e.Username,
	})
	return nil
}

// onMessage dispatches on the frame's top-level type, reading
// container_name flat off the inbound frame, matching the original's
// `event.data.get("container_name")` access (container_logs_handler.py).
func (h *LogStreamHandler) onMessage(ctx context.Context, e Event) error {
	if !e.Conn.HasGroup("is_admin") && !e.Conn.HasGroup("is_api_key") {
		e.Conn.Send(errorFrame("Log streaming requires admin or API-key access"))
		return nil
	}

	switch e.Data.Type {
	case "start_logs":
		h.startLogs(e.Conn, e.UserID, e.Data.ContainerName)
	case "stop_logs":
		h.stopLogs(e.UserID)
	default:
		e.Conn.Send(errorFrame("Unknown command. Available: start_logs, stop_logs"))
	}
	return nil
}

func (h *LogStreamHandler) onDisconnect(ctx context.Context, e Event) error {
	h.stopLogs(e.UserID)
	return nil
}

func (h *LogStreamHandler) startLogs(conn *Connection, userID uint64, containerID string) {
	h.stopLogs(userID)

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := h.source.Open(streamCtx, containerID)
	if err != nil {
		cancel()
		if errors.Is(err, containerlogs.ErrNotFound) {
			resErr := apperrors.Resource("container not found", err)
			logger.LogStream().Warn().Err(resErr).Str("container_id", containerID).Msg("rejecting start_logs")
			conn.Send(errorFrame("Container not found: " + containerID))
		} else {
			resErr := apperrors.Resource("failed to open log stream", err)
			logger.LogStream().Error().Err(resErr).Str("container_id", containerID).Msg("rejecting start_logs")
			conn.Send(errorFrame("Failed to start log stream"))
		}
		return
	}

	done := make(chan struct{})
	h.mu.Lock()
	h.streams[userID] = &logStream{containerID: containerID, cancel: cancel, done: done}
	h.mu.Unlock()

	conn.Send(Frame{Type: TypeLogsStarted, Message: "Log stream started for " + containerID})

	go h.pump(streamCtx, conn, userID, stream, done)
}

func (h *LogStreamHandler) stopLogs(userID uint64) {
	h.mu.Lock()
	s, ok := h.streams[userID]
	if ok {
		delete(h.streams, userID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	s.cancel()
	<-s.done
}

// pump reads chunks from stream, decodes UTF-8 with replacement, buffers
// until newline, and emits one log_line frame per complete line. On stream
// end it flushes any trailing buffered bytes (§4.7).
func (h *LogStreamHandler) pump(ctx context.Context, conn *Connection, userID uint64, stream io.ReadCloser, done chan<- struct{}) {
	defer close(done)
	defer stream.Close()

	reader := bufio.NewReader(stream)
	var buf []byte

	flush := func() {
		if len(buf) == 0 {
			return
		}
		line := sanitizeUTF8(buf)
		buf = buf[:0]
		if !conn.Send(Frame{Type: TypeLogLine, Message: line}) {
			logger.LogStream().Warn().Uint64("user_id", userID).Msg("evicting dead log-stream socket")
			h.registry.Disconnect(ServiceLogs, userID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := reader.ReadByte()
		if err != nil {
			flush()
			if err != io.EOF {
				logger.LogStream().Debug().Err(err).Msg("log stream ended")
			}
			return
		}

		if b == '\n' {
			flush()
			continue
		}
		buf = append(buf, b)
	}
}

func sanitizeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string([]rune(string(b)))
}

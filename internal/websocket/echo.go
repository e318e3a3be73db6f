package websocket

import (
	"context"
	"fmt"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// EchoHandler is the reference implementation of the handler contract: one
// method per lifecycle event, registered on the Echo service's Emitter at
// startup (§4.5).
type EchoHandler struct{}

// NewEchoHandler builds an EchoHandler.
func NewEchoHandler() *EchoHandler { return &EchoHandler{} }

// Register wires the handler's three entry points onto emitter.
func (h *EchoHandler) Register(emitter *Emitter) {
	emitter.On(EventConnect, h.onConnect)
	emitter.On(EventMessage, h.onMessage)
	emitter.On(EventDisconnect, h.onDisconnect)
}

func (h *EchoHandler) onConnect(ctx context.Context, e Event) error {
	e.Conn.Send(Frame{
		Type:    TypeSystem,
		Message: fmt.Sprintf("Echo service: Connected as %s", e.Username),
	})
	return nil
}

func (h *EchoHandler) onMessage(ctx context.Context, e Event) error {
	e.Conn.Send(Frame{
		Type:     TypeEcho,
		UserID:   e.UserID,
		Username: e.Username,
		Message:  e.Data.Content,
	})
	return nil
}

func (h *EchoHandler) onDisconnect(ctx context.Context, e Event) error {
	logger.Registry().Debug().Uint64("user_id", e.UserID).Msg("echo connection closed")
	return nil
}

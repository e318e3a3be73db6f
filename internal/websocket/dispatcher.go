package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/swecc-uw/swecc-sockets/internal/apperrors"
	"github.com/swecc-uw/swecc-sockets/internal/auth"
	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

const (
	closePolicyViolation = 1008
	closeUnknownService  = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Dispatcher owns the HTTP-upgrade-to-event-loop sequence shared by every
// service endpoint (§4.4): verify the token, enforce the Logs-kind group
// gate, register with the Registry, emit Connect, run the receive loop,
// emit Disconnect on the way out.
type Dispatcher struct {
	verifier *auth.Verifier
	registry *Registry
	emitters map[ServiceKind]*Emitter
}

// NewDispatcher builds a Dispatcher wired to the given Emitters, one per
// ServiceKind.
func NewDispatcher(verifier *auth.Verifier, registry *Registry, emitters map[ServiceKind]*Emitter) *Dispatcher {
	return &Dispatcher{verifier: verifier, registry: registry, emitters: emitters}
}

// Handle upgrades c's request to a WebSocket, admits it, emits Connect, and
// starts the connection's pumps; it returns once the pumps are running, and
// the receive loop and Disconnect path continue on those goroutines. token
// is taken from the URL per §6's `WS /ws/<service>/<token>` surface.
func (d *Dispatcher) Handle(c *gin.Context, kind ServiceKind, token string) {
	log := logger.Dispatcher()

	claims, err := d.verifier.Verify(token)
	if err != nil {
		authErr := apperrors.Wrap(apperrors.AuthFailure, "token verification failed", err)
		log.Warn().Err(authErr).Str("kind", string(kind)).Msg("rejecting connection")
		conn, upErr := upgrader.Upgrade(c.Writer, c.Request, nil)
		if upErr == nil {
			closeWithCode(conn, closePolicyViolation, "Authentication failed")
		}
		return
	}

	if kind == ServiceLogs && !hasGroup(claims.Groups, "is_admin") && !hasGroup(claims.Groups, "is_api_key") {
		authErr := apperrors.Auth("insufficient groups for log streaming")
		log.Warn().Err(authErr).Uint64("user_id", claims.UserID).Msg("rejecting connection")
		conn, upErr := upgrader.Upgrade(c.Writer, c.Request, nil)
		if upErr == nil {
			closeWithCode(conn, closePolicyViolation, "Insufficient permissions")
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connection, err := d.registry.Register(kind, claims.UserID, claims.Username, claims.Groups, conn)
	if err != nil {
		log.Warn().Uint64("user_id", claims.UserID).Str("kind", string(kind)).Msg("duplicate connection, closing new socket")
		closeWithCode(conn, closePolicyViolation, "Already connected")
		return
	}

	emitter := d.emitters[kind]
	ctx := context.Background()

	emitter.Emit(ctx, Event{Type: EventConnect, Conn: connection, UserID: claims.UserID, Username: claims.Username})

	onMessage := func(raw []byte) {
		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			protoErr := apperrors.Wrap(apperrors.ProtocolFailure, "invalid JSON message format", err)
			log.Debug().Err(protoErr).Str("connection_id", connection.ID).Msg("malformed client frame")
			connection.Send(errorFrame("Invalid JSON message format"))
			return
		}
		emitter.Emit(ctx, Event{
			Type:     EventMessage,
			Conn:     connection,
			UserID:   claims.UserID,
			Username: claims.Username,
			Data:     frame,
		})
	}

	onClose := func() {
		d.registry.Disconnect(kind, claims.UserID)
		emitter.Emit(ctx, Event{Type: EventDisconnect, Conn: connection, UserID: claims.UserID, Username: claims.Username})
	}

	RunPumps(connection, onMessage, onClose)
}

// RejectUnknownService sends a descriptive error frame then closes with
// 4004, for `WS /ws/<service>/<token>` routes whose service segment does
// not match any known ServiceKind (§6, scenario 6).
func (d *Dispatcher) RejectUnknownService(c *gin.Context, service string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	data, _ := marshalFrame(errorFrame("Unknown service: " + service))
	conn.WriteMessage(websocket.TextMessage, data)
	closeWithCode(conn, closeUnknownService, "Unknown service")
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

func hasGroup(groups map[string]struct{}, name string) bool {
	_, ok := groups[name]
	return ok
}

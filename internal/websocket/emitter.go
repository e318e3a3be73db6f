package websocket

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// EventType is one of the three lifecycle moments an Emitter delivers (§4.3).
type EventType string

const (
	EventConnect    EventType = "connect"
	EventMessage    EventType = "message"
	EventDisconnect EventType = "disconnect"
)

// Event is the ephemeral value passed to every listener for one emission.
// It lives only for the duration of Emit.
type Event struct {
	Type     EventType
	Conn     *Connection
	UserID   uint64
	Username string
	Data     InboundFrame
}

// Listener reacts to one Event. A returned error is logged and does not
// prevent sibling listeners from running.
type Listener func(ctx context.Context, e Event) error

// Emitter is a single ServiceKind's publish/subscribe point. Handlers
// register their Connect/Message/Disconnect methods on their service's
// Emitter at startup (§4.3); a handler never registers on another service's
// Emitter.
type Emitter struct {
	kind ServiceKind

	mu        sync.Mutex
	listeners map[EventType][]Listener
}

// NewEmitter builds an Emitter for the given ServiceKind.
func NewEmitter(kind ServiceKind) *Emitter {
	return &Emitter{
		kind:      kind,
		listeners: make(map[EventType][]Listener),
	}
}

// On registers listener for event type t. Registration order is preserved
// but not observable: listeners run concurrently, so callers must not rely
// on sibling ordering.
func (e *Emitter) On(t EventType, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[t] = append(e.listeners[t], l)
}

// Emit invokes every listener registered for ev.Type concurrently and joins
// on them, swallowing and logging per-listener errors so one failing
// listener cannot starve the others. Cancelling ctx propagates to every
// listener.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	e.mu.Lock()
	ls := make([]Listener, len(e.listeners[ev.Type]))
	copy(ls, e.listeners[ev.Type])
	e.mu.Unlock()

	if len(ls) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range ls {
		l := l
		g.Go(func() error {
			if err := l(gctx, ev); err != nil {
				logger.Registry().Error().
					Err(err).
					Str("service", string(e.kind)).
					Str("event", string(ev.Type)).
					Msg("listener failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

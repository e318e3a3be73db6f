package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_EmitInvokesAllListeners(t *testing.T) {
	e := NewEmitter(ServiceEcho)

	var calls int32
	for i := 0; i < 3; i++ {
		e.On(EventConnect, func(ctx context.Context, ev Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}

	e.Emit(context.Background(), Event{Type: EventConnect})
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestEmitter_FailingListenerDoesNotStarveSiblings(t *testing.T) {
	e := NewEmitter(ServiceEcho)

	var ranOK int32
	e.On(EventMessage, func(ctx context.Context, ev Event) error {
		return errors.New("boom")
	})
	e.On(EventMessage, func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&ranOK, 1)
		return nil
	})

	e.Emit(context.Background(), Event{Type: EventMessage})
	assert.EqualValues(t, 1, atomic.LoadInt32(&ranOK))
}

func TestEmitter_EmitWithNoListenersReturnsImmediately(t *testing.T) {
	e := NewEmitter(ServiceEcho)

	done := make(chan struct{})
	go func() {
		e.Emit(context.Background(), Event{Type: EventDisconnect})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit with no listeners should return immediately")
	}
}

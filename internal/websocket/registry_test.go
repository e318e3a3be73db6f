package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookupDisconnect(t *testing.T) {
	r := NewRegistry()

	conn, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, conn)

	found := r.Lookup(ServiceEcho, 1)
	assert.Same(t, conn, found)

	r.Disconnect(ServiceEcho, 1)
	assert.Nil(t, r.Lookup(ServiceEcho, 1))
}

func TestRegistry_DuplicateConnectionRejected(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	require.NoError(t, err)

	second, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Nil(t, second)

	assert.Same(t, first, r.Lookup(ServiceEcho, 1))
}

func TestRegistry_DisconnectIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Disconnect(ServiceEcho, 99) // no-op, must not panic

	_, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	require.NoError(t, err)
	r.Disconnect(ServiceEcho, 1)
	r.Disconnect(ServiceEcho, 1) // second call is a no-op
	assert.Nil(t, r.Lookup(ServiceEcho, 1))
}

func TestRegistry_DistinctKindsDoNotCollide(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	require.NoError(t, err)
	_, err = r.Register(ServiceRoom, 1, "alice", nil, nil)
	require.NoError(t, err)

	assert.NotNil(t, r.Lookup(ServiceEcho, 1))
	assert.NotNil(t, r.Lookup(ServiceRoom, 1))
}

func TestRegistry_ReregisterAfterDisconnectSucceeds(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	require.NoError(t, err)
	r.Disconnect(ServiceEcho, 1)

	conn, err := r.Register(ServiceEcho, 1, "alice", nil, nil)
	require.NoError(t, err)
	assert.Same(t, conn, r.Lookup(ServiceEcho, 1))
}

func TestRegistry_ActiveUsers(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(ServiceEcho, 1, "alice", nil, nil)
	_, _ = r.Register(ServiceRoom, 2, "bob", nil, nil)

	users := r.ActiveUsers()
	assert.Len(t, users, 2)
	_, ok1 := users[1]
	_, ok2 := users[2]
	assert.True(t, ok1)
	assert.True(t, ok2)
}

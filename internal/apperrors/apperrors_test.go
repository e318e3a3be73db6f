package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_UnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ResourceFailure, "container not found", cause)

	assert.Equal(t, ResourceFailure, err.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestNew_HasNoDetails(t *testing.T) {
	err := New(SemanticFailure, "not a member")
	assert.Equal(t, "semantic_failure: not a member", err.Error())
}

func TestConstructorsSetExpectedKind(t *testing.T) {
	assert.Equal(t, AuthFailure, Auth("x").Kind)
	assert.Equal(t, ProtocolFailure, Protocol("x").Kind)
	assert.Equal(t, SemanticFailure, Semantic("x").Kind)
	assert.Equal(t, ResourceFailure, Resource("x", nil).Kind)
	assert.Equal(t, InternalFailure, Internal("x", nil).Kind)
	assert.Equal(t, TransportLoss, Transport("x", nil).Kind)
}

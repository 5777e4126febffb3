package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := New("registry", "register", AlreadyExists, "component already registered")
	assert.Equal(t, "registry[register/ALREADY_EXISTS]: component already registered", err.Error())
}

func TestError_WithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := New("dbfacade", "connect", Unavailable, "backend unreachable").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_Is(t *testing.T) {
	a := New("urp", "validate", Unauthenticated, "bad token")
	b := New("urp", "validate", Unauthenticated, "different message")
	c := New("urp", "validate", NotFound, "bad token")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, DeadlineExceeded, KindOf(New("lifecycle", "start", DeadlineExceeded, "timed out")))
	require.Equal(t, Internal, KindOf(errors.New("plain error")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestIsKind(t *testing.T) {
	err := New("dbfacade", "store", Conflict, "version mismatch")
	assert.True(t, IsKind(err, Conflict))
	assert.False(t, IsKind(err, NotFound))
	assert.False(t, IsKind(errors.New("plain"), Conflict))
}

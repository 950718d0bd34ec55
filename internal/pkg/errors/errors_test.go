package errors

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineErrorMatchesSentinel(t *testing.T) {
	err := error(&EngineError{ExitCode: 2, Diagnostic: "boom"})
	require.True(t, IsEngine(err))
	require.Contains(t, err.Error(), "exit code 2")
	require.Contains(t, err.Error(), "boom")
	require.False(t, IsNotFound(err))
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("exec: not found")
	err := &EngineError{ExitCode: -1, Err: cause}
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrEngine)
}

func TestStoreWrapping(t *testing.T) {
	require.Nil(t, Store(nil))
	require.Equal(t, ErrNotFound, Store(ErrNotFound))

	wrapped := Store(sql.ErrConnDone)
	require.ErrorIs(t, wrapped, ErrStore)
	require.ErrorIs(t, wrapped, sql.ErrConnDone)
	require.Equal(t, wrapped, Store(wrapped))
}

func TestInvalid(t *testing.T) {
	err := Invalid("question %s", "required")
	require.ErrorIs(t, err, ErrInvalid)
	require.Equal(t, "invalid: question required", err.Error())
}

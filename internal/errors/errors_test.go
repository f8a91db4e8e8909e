package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugErrorMessageIncludesHint(t *testing.T) {
	err := AlreadyRunning(42)
	assert.Equal(t, "debug adapter supports only one client connection at a time | Hint: End the current debug session before starting a new one.", err.Error())
	assert.Equal(t, 42, err.Details["pid"])
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := AdapterExited(3)
	wrapped := fmt.Errorf("launch: %w", base)

	assert.True(t, HasCode(wrapped, CodeAdapterExited))
	assert.False(t, HasCode(wrapped, CodeTimeout))
	assert.False(t, HasCode(stderrors.New("plain"), CodeAdapterExited))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Timeout("debug adapter to be ready", 10))

	assert.ErrorIs(t, err, &DebugError{Code: CodeTimeout})
	assert.NotErrorIs(t, err, &DebugError{Code: CodeAdapterExited})
}

func TestProtocolRequestFailedUnwraps(t *testing.T) {
	cause := stderrors.New("adapter said no")
	err := ProtocolRequestFailed("addInferiors", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "addInferiors", err.Details["command"])
	assert.Contains(t, err.Error(), "addInferiors request failed")
}

func TestFromErrorPreservesStructure(t *testing.T) {
	orig := InvalidConfiguration("debugger path", "/nope", "not a regular file")
	assert.Same(t, orig, FromError(fmt.Errorf("wrapped: %w", orig)))

	plain := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrorCode("UNKNOWN_ERROR"), plain.Code)
	assert.Equal(t, "boom", plain.Message)
}

package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct{}

func (codedError) Error() string { return "coded" }
func (codedError) Code() Code    { return CodeForbidden }

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "failed to load company")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeInternal))
	assert.Equal(t, "failed to load company: connection refused", err.Error())
}

func TestWrapNilBehavesLikeNew(t *testing.T) {
	err := Wrap(nil, CodeNotFound, "document not found")
	assert.True(t, Is(err, CodeNotFound))
	assert.Equal(t, "document not found", err.Error())
}

func TestCodeOf(t *testing.T) {
	t.Run("wrapped by fmt", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeConflict, "version mismatch"))
		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, CodeConflict, code)
	})

	t.Run("types exposing Code", func(t *testing.T) {
		assert.True(t, HasCode(codedError{}, CodeForbidden))
	})

	t.Run("plain error", func(t *testing.T) {
		_, ok := CodeOf(errors.New("boom"))
		assert.False(t, ok)
	})
}

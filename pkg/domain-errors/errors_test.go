package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	t.Run("HasCode sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeInvalidStep, "wrong step"))
		assert.True(t, HasCode(err, CodeInvalidStep))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("Wrap keeps the cause", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := Wrap(cause, CodeStoreUnavailable, "load alert")
		require.ErrorIs(t, err, cause)
		assert.True(t, IsRetryable(err))
		assert.Contains(t, err.Error(), "load alert")
	})

	t.Run("Wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))
	})

	t.Run("business codes are not retryable", func(t *testing.T) {
		assert.False(t, IsRetryable(New(CodeNotConfigured, "no profile")))
	})
}

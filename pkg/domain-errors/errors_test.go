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
		err := fmt.Errorf("register: %w", New(CodeAtCapacity, "event is full"))
		assert.True(t, HasCode(err, CodeAtCapacity))
		assert.False(t, HasCode(err, CodeDeadlinePassed))
	})

	t.Run("Wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeCollaboratorUnavailable, "event store unavailable")
		require.ErrorIs(t, err, cause)
		assert.Equal(t, CodeCollaboratorUnavailable, CodeOf(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("plain errors map to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

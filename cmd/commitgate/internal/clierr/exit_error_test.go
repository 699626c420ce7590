package clierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, ExitCodeOf(nil))
	assert.Equal(t, 1, ExitCodeOf(errors.New("plain")))
	assert.Equal(t, 3, ExitCodeOf(New(3, "boom")))
	assert.Equal(t, 2, ExitCodeOf(fmt.Errorf("wrapped: %w", New(2, "inner"))))
	// Zero and negative codes normalize to 1.
	assert.Equal(t, 1, ExitCodeOf(New(0, "boom")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(4, "context", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "context: cause", err.Error())
	assert.Equal(t, 4, ExitCodeOf(err))
}

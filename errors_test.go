package woofdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	var err error = newError(KindConflict, "optimistic retry needed", nil)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrCommitFailed))
}

func TestErrorUnwrapsCause(t *testing.T) {
	var cause = errors.New("boom")
	var err = newError(KindCommitFailed, "commit", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

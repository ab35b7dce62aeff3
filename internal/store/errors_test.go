package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHierarchy(t *testing.T) {
	tests := []struct {
		err    error
		parent error
	}{
		{ErrTaskNotFound, ErrNotFound},
		{ErrAudioRecordNotFound, ErrNotFound},
		{ErrResultNotFound, ErrNotFound},
		{ErrTaskExists, ErrDuplicate},
		{ErrResultExists, ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.parent)
			assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), tt.parent)
		})
	}

	assert.NotErrorIs(t, ErrTaskNotFound, ErrDuplicate)
	assert.NotErrorIs(t, ErrTaskExists, ErrNotFound)
}

func TestIsConflictError(t *testing.T) {
	assert.True(t, IsConflictError(ErrConflict))
	assert.True(t, IsConflictError(fmt.Errorf("%w: task at version 3", ErrConflict)))
	assert.False(t, IsConflictError(ErrTaskNotFound))
	assert.False(t, IsConflictError(errors.New("concurrent modification")))
	assert.False(t, IsConflictError(nil))
}

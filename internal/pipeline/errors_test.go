package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/narrator/internal/store"
)

func TestQueueUnavailableError(t *testing.T) {
	err := &QueueUnavailableError{Op: "enqueue", Err: store.ErrUnavailable}

	assert.Contains(t, err.Error(), "enqueue")
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	assert.True(t, IsQueueUnavailable(err))
	assert.True(t, IsQueueUnavailable(fmt.Errorf("handler: %w", err)))
	assert.False(t, IsQueueUnavailable(errors.New("boom")))
	assert.False(t, IsQueueUnavailable(nil))
}

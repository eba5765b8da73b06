package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunLock(t *testing.T) {
	lock := NewRunLocker(nil, nil)

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	release()
	release, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestDialectorSelection(t *testing.T) {
	assert.True(t, isPostgres("postgres://user:pw@localhost:5432/jobs?sslmode=disable"))
	assert.True(t, isPostgres("host=localhost user=pc dbname=jobs"))
	assert.False(t, isPostgres("packchicken.db"))
	assert.False(t, isPostgres("file::memory:?cache=shared"))
}

//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSQLiteConflictError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsSQLiteConflictError(nil))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
	assert.True(t, IsSQLiteConflictError(errors.New("sqlite: step: SQLITE_BUSY")))
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked (5)")))
}

func TestRetryOnConflictRetriesBusy(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryOnConflict(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	calls := 0
	err := RetryOnConflict(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryOnConflict(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflictHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOnConflict(ctx, 3, time.Second, func() error {
		return errors.New("SQLITE_BUSY")
	})
	require.ErrorIs(t, err, context.Canceled)
}

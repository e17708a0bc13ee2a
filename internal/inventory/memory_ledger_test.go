package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrementFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.SetStock(ctx, 1, 3))

	count, err := l.Decrement(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDecrementUnknownProduct(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Decrement(context.Background(), 99, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestIncrementRestoresStock(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.SetStock(ctx, 1, 2))

	_, err := l.Decrement(ctx, 1, 2)
	require.NoError(t, err)
	require.NoError(t, l.Increment(ctx, 1, 2))

	count, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConcurrentDecrementsNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.SetStock(ctx, 1, 1))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, err := l.Decrement(ctx, 1, 1)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, count, 0)
		}()
	}
	wg.Wait()

	count, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

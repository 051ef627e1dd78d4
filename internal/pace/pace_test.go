package pace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_ZeroDelayNeverBlocks(t *testing.T) {
	p := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := New(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx)) // immediate
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_CancelledContext(t *testing.T) {
	p := New(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacer_SetDelay(t *testing.T) {
	p := New(time.Hour)
	assert.Equal(t, time.Hour, p.Delay())

	p.SetDelay(0)
	assert.Equal(t, time.Duration(0), p.Delay())

	require.NoError(t, p.Wait(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.Wait(ctx))
}

func TestPacer_NilIsNoop(t *testing.T) {
	var p *Pacer
	assert.NoError(t, p.Wait(context.Background()))
	p.SetDelay(time.Second)
	assert.Equal(t, time.Duration(0), p.Delay())
}

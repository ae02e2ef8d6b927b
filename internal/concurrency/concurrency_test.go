package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPoolReturnsFirstError(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	errBoom := errors.New("boom")

	p := NewPool(context.Background(), 2)
	p.Go(func(ctx context.Context) error {
		return errBoom
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := p.Wait()
	require.ErrorIs(t, err, errBoom)
}

func TestPoolCancelsRemainingTasks(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	var canceled atomic.Bool

	p := NewPool(context.Background(), 1)
	p.Go(func(ctx context.Context) error {
		return errors.New("first task fails")
	})
	p.Go(func(ctx context.Context) error {
		// Runs after the failure with maxGoroutines=1, so the pool
		// context must already be canceled.
		canceled.Store(ctx.Err() != nil)
		return nil
	})

	require.Error(t, p.Wait())
	require.True(t, canceled.Load())
}

func TestPoolRespectsParentCancellation(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPool(ctx, 4)
	p.Go(func(ctx context.Context) error {
		return ctx.Err()
	})

	require.ErrorIs(t, p.Wait(), context.Canceled)
}

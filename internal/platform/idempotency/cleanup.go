package idempotency

import (
	"context"
	"time"
)

// Cleanup returns a job deleting up to batch expired records per run, looping until a short batch.
func Cleanup(store Store, batch int, clock func() time.Time) func(ctx context.Context) (int, error) {
	if clock == nil {
		clock = time.Now
	}
	return func(ctx context.Context) (int, error) {
		total := 0
		for {
			removed, err := store.DeleteExpired(ctx, clock().UTC(), batch)
			total += removed
			if err != nil || batch <= 0 || removed < batch {
				return total, err
			}
		}
	}
}

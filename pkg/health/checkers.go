package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines run.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent stop-the-world pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// StalenessCheck fails when last reports a time older than maxAge. A zero
// time is tolerated for grace after startup.
func StalenessCheck(last func() time.Time, maxAge, grace time.Duration) CheckFunc {
	started := time.Now()
	return func(_ context.Context) error {
		t := last()
		if t.IsZero() {
			if time.Since(started) > grace {
				return errors.Errorf("no successful run within %s of startup", grace)
			}
			return nil
		}
		if age := time.Since(t); age > maxAge {
			return errors.Errorf("last successful run %s ago exceeds %s", age.Round(time.Second), maxAge)
		}
		return nil
	}
}

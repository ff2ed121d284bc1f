package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by connection pools and remote clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// LoadedCheck fails until loadedAt reports a non-zero time, and when the last
// load is older than maxAge. A zero maxAge only requires one load.
func LoadedCheck(loadedAt func() time.Time, maxAge time.Duration) CheckFunc {
	return func(_ context.Context) error {
		at := loadedAt()
		if at.IsZero() {
			return errors.New("not loaded yet")
		}
		if maxAge > 0 {
			if age := time.Since(at); age > maxAge {
				return errors.Errorf("last loaded %s ago", age.Truncate(time.Second))
			}
		}
		return nil
	}
}

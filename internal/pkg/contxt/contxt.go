package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext returns a background context bounded by timeout. Setting
// CONTEXT_TEST drops the deadline.
func NewContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Detach keeps the values of parent but not its cancellation. Work that other
// callers may join, such as a shared upstream fetch, must not die with the
// request that started it.
func Detach(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(context.WithoutCancel(parent))
	}
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

const (
	// DefaultKeyInitialDelay is the delay before the warm-up fetch.
	DefaultKeyInitialDelay = 100 * time.Millisecond

	// DefaultKeyRefreshInterval is the period between scheduled fetches.
	DefaultKeyRefreshInterval = 5 * time.Minute
)

// KeyRefresher runs a [KeyFetcher] in the background: one fetch after an
// initial delay, then one per interval until stopped. Start returns
// immediately, so requests are served (and fail closed) before the first
// fetch completes. A failed cycle is logged by the fetcher and the
// schedule continues; there is no backoff.
type KeyRefresher struct {
	fetcher      *KeyFetcher
	initialDelay time.Duration
	interval     time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKeyRefresher returns a stopped refresher. Non-positive durations fall
// back to [DefaultKeyInitialDelay] and [DefaultKeyRefreshInterval].
func NewKeyRefresher(fetcher *KeyFetcher, initialDelay, interval time.Duration) *KeyRefresher {
	if initialDelay <= 0 {
		initialDelay = DefaultKeyInitialDelay
	}
	if interval <= 0 {
		interval = DefaultKeyRefreshInterval
	}
	return &KeyRefresher{
		fetcher:      fetcher,
		initialDelay: initialDelay,
		interval:     interval,
		logger:       fetcher.logger,
	}
}

// Start launches the schedule. It fails with a configuration error when
// the refresher is already running.
func (r *KeyRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return sserr.Configuration("auth: key refresher is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger.InfoContext(ctx, "auth: key refresher started",
		"initial_delay", r.initialDelay,
		"interval", r.interval,
	)
	go r.run(ctx, r.done)
	return nil
}

// Stop ends the schedule and waits for an in-flight fetch to finish.
// Stopping a refresher that is not running is a no-op.
func (r *KeyRefresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *KeyRefresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	warmup := time.NewTimer(r.initialDelay)
	defer warmup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-warmup.C:
			r.refresh(ctx)
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh runs one cycle. The fetch is detached from the schedule's
// cancellation; it is bounded by the fetcher timeout instead.
func (r *KeyRefresher) refresh(ctx context.Context) {
	_ = r.fetcher.Refresh(context.WithoutCancel(ctx))
}

package gopro

import (
	"context"
	"time"

	"github.com/duncanleo/hc-gopro/log"
)

// Default readiness budget: 50 status queries spaced 100ms apart.
const (
	DefaultReadyAttempts = 50
	DefaultReadyInterval = 100 * time.Millisecond
)

// Waker is the part of a camera handle the readiness poller drives.
type Waker interface {
	PowerOn(ctx context.Context) error
	Status(ctx context.Context) (*Status, error)
}

// ReadyPolicy bounds the readiness wait.
type ReadyPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultReadyPolicy returns the 50 x 100ms budget.
func DefaultReadyPolicy() ReadyPolicy {
	return ReadyPolicy{Attempts: DefaultReadyAttempts, Interval: DefaultReadyInterval}
}

// WaitReady powers the camera on once and polls its status until it answers.
// With confirmLink set a successful answer only counts once the stream link
// flag is raised. Exhausting the budget yields ErrCameraUnreachable, or
// ErrLinkNotConfirmed when the last answer arrived but lacked the link flag.
func WaitReady(ctx context.Context, cam Waker, confirmLink bool, policy ReadyPolicy) (*Status, error) {
	logger := log.WithComponent("gopro")

	if policy.Attempts <= 0 {
		policy.Attempts = DefaultReadyAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultReadyInterval
	}

	if err := cam.PowerOn(ctx); err != nil {
		logger.Warn().Err(err).Msg("power on failed, polling anyway")
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		st, err := cam.Status(ctx)
		switch {
		case err != nil:
			lastErr = ErrCameraUnreachable
			logger.Debug().Err(err).Int("attempt", attempt).Msg("status not available yet")
		case confirmLink && !st.LinkEstablished():
			lastErr = ErrLinkNotConfirmed
			logger.Debug().Int("attempt", attempt).Msg("stream link not registered yet")
		default:
			logger.Debug().Int("attempt", attempt).Msg("status received")
			return st, nil
		}

		if attempt >= policy.Attempts {
			return nil, lastErr
		}

		t := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

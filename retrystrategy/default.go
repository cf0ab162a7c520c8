package retrystrategy

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/s3transfer/s3transfer/internal/clock"
)

// DefaultMaxRetries is the maximum number of attempts (including the
// first) permitted per request.
const DefaultMaxRetries = 5

const (
	baseBackoff        = 25 * time.Millisecond
	maxBackoff         = 20 * time.Second
	throttleBaseFactor = 4 // throttled requests back off on a slower curve
)

// NewDefault returns a Strategy implementing capped exponential backoff
// with full jitter, partitioned per-key so that one unhealthy VIP cannot
// starve the retry budget of the others. This mirrors the shape (not the
// code) of the AWS SDK's standard retryer, as seen in the objectfs and
// aws-sdk-go-v2 transfer manager examples: bounded attempts, capped
// exponential delay, decorrelated by randomization.
func NewDefault(maxRetries int, clk clock.Clock) Strategy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &defaultStrategy{
		maxRetries: maxRetries,
		clock:      clk,
		partitions: make(map[string]*partitionState),
	}
}

type defaultStrategy struct {
	maxRetries int
	clock      clock.Clock

	mu         sync.Mutex
	partitions map[string]*partitionState
}

type partitionState struct {
	refs int
}

type defaultToken struct {
	partitionKey string
	attempt      int
}

func (s *defaultStrategy) AcquireToken(_ context.Context, partitionKey string) (Token, error) {
	s.mu.Lock()
	part, ok := s.partitions[partitionKey]
	if !ok {
		part = &partitionState{}
		s.partitions[partitionKey] = part
	}
	part.refs++
	s.mu.Unlock()
	return &defaultToken{partitionKey: partitionKey}, nil
}

func (s *defaultStrategy) ScheduleRetry(ctx context.Context, token Token, class ErrorClass) error {
	tok, ok := token.(*defaultToken)
	if !ok {
		return ErrExhausted
	}
	if !class.Retryable() {
		return ErrExhausted
	}
	tok.attempt++
	if tok.attempt >= s.maxRetries {
		return ErrExhausted
	}
	delay := backoffDelay(tok.attempt, class)
	timer := s.clock.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *defaultStrategy) RecordSuccess(token Token) {
	if tok, ok := token.(*defaultToken); ok {
		tok.attempt = 0
	}
}

func (s *defaultStrategy) ReleaseToken(token Token) {
	tok, ok := token.(*defaultToken)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if part, ok := s.partitions[tok.partitionKey]; ok {
		part.refs--
		if part.refs <= 0 {
			delete(s.partitions, tok.partitionKey)
		}
	}
}

// backoffDelay computes a capped-exponential, fully-jittered delay for
// the given attempt count (1-based), per class curve.
func backoffDelay(attempt int, class ErrorClass) time.Duration {
	factor := 1.0
	if class == ClassThrottling {
		factor = throttleBaseFactor
	}
	capped := math.Min(float64(maxBackoff), float64(baseBackoff)*factor*math.Pow(2, float64(attempt-1)))
	if capped <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(capped))) //nolint:gosec // jitter, not security-sensitive
}

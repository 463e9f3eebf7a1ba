package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Config struct {
	RequestsPerSecond float64       `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int           `koanf:"burst_size" mapstructure:"burst_size"`
	RetryAfterDefault time.Duration `koanf:"retry_after_default" mapstructure:"retry_after_default"`
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		BurstSize:         20,
		RetryAfterDefault: 60 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit: requests_per_second must be positive")
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("ratelimit: burst_size must be positive")
	}
	return nil
}

// Bucket is a token bucket limiter. Tokens refill continuously at
// RequestsPerSecond up to BurstSize; a full burst is available at start. A
// single mutex guards the refill and debit critical section.
type Bucket struct {
	mu         sync.Mutex
	config     Config
	tokens     float64
	lastRefill time.Time

	Now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewBucket(config Config) (*Bucket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.RetryAfterDefault <= 0 {
		config.RetryAfterDefault = DefaultConfig().RetryAfterDefault
	}
	bucket := &Bucket{
		config: config,
		tokens: float64(config.BurstSize),
		Now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
	bucket.lastRefill = bucket.Now()
	return bucket, nil
}

// Acquire blocks until cost tokens are available, then debits them. A cost
// below one counts as one.
func (b *Bucket) Acquire(ctx context.Context, cost int) error {
	if b == nil {
		return fmt.Errorf("ratelimit: bucket is nil")
	}
	if cost < 1 {
		cost = 1
	}
	needed := float64(cost)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= needed {
			b.tokens -= needed
			b.mu.Unlock()
			return nil
		}
		missing := needed - b.tokens
		b.mu.Unlock()

		wait := time.Duration(missing / b.config.RequestsPerSecond * float64(time.Second))
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// WaitForRetry sleeps for a server-requested backoff, falling back to the
// configured default when the hint is absent.
func (b *Bucket) WaitForRetry(ctx context.Context, retryAfter time.Duration) error {
	if b == nil {
		return fmt.Errorf("ratelimit: bucket is nil")
	}
	if retryAfter <= 0 {
		retryAfter = b.config.RetryAfterDefault
	}
	return b.sleep(ctx, retryAfter)
}

// Available reports the token count after a refill, for observability.
func (b *Bucket) Available() float64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *Bucket) Config() Config {
	if b == nil {
		return Config{}
	}
	return b.config
}

func (b *Bucket) refillLocked() {
	now := b.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*b.config.RequestsPerSecond, float64(b.config.BurstSize))
	}
	b.lastRefill = now
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package ratelimit provides per-key token-bucket rate limiting for the
// api, llm, file-operation, and command execution classes.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures one limiter class.
type Config struct {
	// MaxRequests is the number of requests allowed per Window.
	MaxRequests float64 `toml:"max_requests"`
	// Window is the refill period.
	Window time.Duration `toml:"window"`
	// Burst is extra capacity above the steady-state rate. The bucket
	// holds MaxRequests+Burst tokens when full.
	Burst int `toml:"burst"`
	// Enabled controls whether the limiter is active.
	Enabled bool `toml:"enabled"`
}

// rate returns the refill rate in tokens per second.
func (c Config) rate() float64 {
	window := c.Window
	if window <= 0 {
		window = time.Second
	}
	return c.MaxRequests / window.Seconds()
}

// capacity returns the full bucket size.
func (c Config) capacity() float64 {
	return c.MaxRequests + float64(c.Burst)
}

// Bucket implements a single token bucket.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastUpdate time.Time
}

// NewBucket creates a full bucket for the given config.
func NewBucket(config Config) *Bucket {
	capacity := config.capacity()
	if capacity <= 0 {
		capacity = 1
	}
	return &Bucket{
		tokens:     capacity,
		maxTokens:  capacity,
		refillRate: config.rate(),
		lastUpdate: time.Now(),
	}
}

// TryAcquire consumes one token if available.
func (b *Bucket) TryAcquire() bool {
	return b.TryAcquireN(1)
}

// TryAcquireN consumes n tokens if available.
func (b *Bucket) TryAcquireN(n int) bool {
	if n <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillAt(time.Now())
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// refillAt adds tokens for the elapsed time, clamped to capacity. Must be
// called with the lock held.
func (b *Bucket) refillAt(now time.Time) {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.lastUpdate = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Tokens returns the current token count after refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillAt(time.Now())
	return b.tokens
}

// TimeUntilAvailable returns how long until n tokens will be available.
func (b *Bucket) TimeUntilAvailable(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillAt(time.Now())
	missing := float64(n) - b.tokens
	if missing <= 0 {
		return 0
	}
	if b.refillRate <= 0 {
		return time.Duration(1<<62 - 1)
	}
	return time.Duration(missing / b.refillRate * float64(time.Second))
}

// Limiter manages independent buckets per key.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
}

// NewLimiter creates a limiter for one class of operations.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		maxKeys: 10000,
	}
}

// TryAcquire consumes one token for the key if available.
func (l *Limiter) TryAcquire(key string) bool {
	return l.TryAcquireN(key, 1)
}

// TryAcquireN consumes n tokens for the key if available.
func (l *Limiter) TryAcquireN(key string, n int) bool {
	if !l.config.Enabled {
		return true
	}
	return l.getBucket(key).TryAcquireN(n)
}

// TimeUntilAvailable returns the wait before n tokens are available for key.
func (l *Limiter) TimeUntilAvailable(key string, n int) time.Duration {
	if !l.config.Enabled {
		return 0
	}
	return l.getBucket(key).TimeUntilAvailable(n)
}

func (l *Limiter) getBucket(key string) *Bucket {
	l.mu.RLock()
	bucket, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, ok = l.buckets[key]; ok {
		return bucket
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	bucket = NewBucket(l.config)
	l.buckets[key] = bucket
	return bucket
}

// prune drops buckets that are nearly full, i.e. keys idle long enough to
// have refilled. Called with the write lock held.
func (l *Limiter) prune() {
	for key, bucket := range l.buckets {
		if bucket.Tokens() >= bucket.maxTokens*0.9 {
			delete(l.buckets, key)
		}
	}
}

// Reset removes the bucket for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Classes bundles the four process-wide limiter classes.
type Classes struct {
	API      *Limiter
	LLM      *Limiter
	FileOps  *Limiter
	Commands *Limiter
}

// DefaultClasses returns the preconfigured limiter set. Each class has its
// own steady-state rate and burst headroom.
func DefaultClasses() *Classes {
	return &Classes{
		API:      NewLimiter(Config{MaxRequests: 60, Window: time.Minute, Burst: 10, Enabled: true}),
		LLM:      NewLimiter(Config{MaxRequests: 20, Window: time.Minute, Burst: 5, Enabled: true}),
		FileOps:  NewLimiter(Config{MaxRequests: 120, Window: time.Minute, Burst: 30, Enabled: true}),
		Commands: NewLimiter(Config{MaxRequests: 30, Window: time.Minute, Burst: 10, Enabled: true}),
	}
}

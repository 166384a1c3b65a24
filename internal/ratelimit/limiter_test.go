package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestBucket_Burst(t *testing.T) {
	bucket := NewBucket(Config{MaxRequests: 5, Window: time.Second, Burst: 2, Enabled: true})

	// Full bucket holds max_requests + burst tokens.
	for i := 0; i < 7; i++ {
		if !bucket.TryAcquire() {
			t.Fatalf("acquire %d should succeed", i)
		}
	}
	if bucket.TryAcquire() {
		t.Fatal("acquire past capacity should fail")
	}

	// After 200ms at 5/s roughly one token returns.
	time.Sleep(250 * time.Millisecond)
	if !bucket.TryAcquire() {
		t.Fatal("acquire after refill should succeed")
	}
}

func TestBucket_RefillMonotone(t *testing.T) {
	bucket := NewBucket(Config{MaxRequests: 100, Window: time.Second, Enabled: true})
	bucket.TryAcquireN(50)

	before := bucket.Tokens()
	time.Sleep(20 * time.Millisecond)
	after := bucket.Tokens()
	if after < before {
		t.Errorf("refill must be monotone: before=%f after=%f", before, after)
	}
	if after > bucket.maxTokens {
		t.Errorf("tokens exceed capacity: %f > %f", after, bucket.maxTokens)
	}
}

func TestBucket_AcquireDecreases(t *testing.T) {
	bucket := NewBucket(Config{MaxRequests: 10, Window: time.Hour, Enabled: true})
	before := bucket.Tokens()
	if !bucket.TryAcquireN(3) {
		t.Fatal("acquire should succeed")
	}
	if after := bucket.Tokens(); after > before {
		t.Errorf("acquire must not increase tokens: before=%f after=%f", before, after)
	}
}

func TestBucket_ZeroBurstSteadyState(t *testing.T) {
	// With burst=0 the bucket never holds more than max_requests/window
	// worth of capacity.
	bucket := NewBucket(Config{MaxRequests: 10, Window: time.Second, Burst: 0, Enabled: true})
	if !bucket.TryAcquireN(10) {
		t.Fatal("full bucket should allow max_requests")
	}
	if bucket.TryAcquire() {
		t.Fatal("burst=0 must not allow more than max_requests at once")
	}
}

func TestBucket_TimeUntilAvailable(t *testing.T) {
	bucket := NewBucket(Config{MaxRequests: 10, Window: time.Second, Enabled: true})
	if wait := bucket.TimeUntilAvailable(1); wait != 0 {
		t.Errorf("full bucket should have zero wait, got %v", wait)
	}
	bucket.TryAcquireN(10)
	wait := bucket.TimeUntilAvailable(5)
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait for 5 tokens at 10/s should be ~500ms, got %v", wait)
	}
}

func TestLimiter_IndependentKeys(t *testing.T) {
	limiter := NewLimiter(Config{MaxRequests: 1, Window: time.Hour, Enabled: true})

	if !limiter.TryAcquire("a") {
		t.Fatal("first acquire on key a should succeed")
	}
	if limiter.TryAcquire("a") {
		t.Fatal("second acquire on key a should fail")
	}
	if !limiter.TryAcquire("b") {
		t.Fatal("key b has its own bucket")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(Config{MaxRequests: 0, Window: time.Second, Enabled: false})
	for i := 0; i < 100; i++ {
		if !limiter.TryAcquire("k") {
			t.Fatal("disabled limiter must always allow")
		}
	}
	if limiter.TimeUntilAvailable("k", 1) != 0 {
		t.Fatal("disabled limiter has zero wait")
	}
}

func TestLimiter_Prune(t *testing.T) {
	limiter := NewLimiter(Config{MaxRequests: 100, Window: time.Second, Enabled: true})
	limiter.maxKeys = 10
	for i := 0; i < 25; i++ {
		limiter.TryAcquire(fmt.Sprintf("key-%d", i))
	}
	limiter.mu.RLock()
	size := len(limiter.buckets)
	limiter.mu.RUnlock()
	if size > 25 {
		t.Errorf("bucket map should stay bounded, got %d", size)
	}
}

func TestDefaultClasses(t *testing.T) {
	classes := DefaultClasses()
	if classes.API == nil || classes.LLM == nil || classes.FileOps == nil || classes.Commands == nil {
		t.Fatal("all four limiter classes must be configured")
	}
	if !classes.LLM.TryAcquire("session") {
		t.Fatal("fresh llm limiter should allow")
	}
}

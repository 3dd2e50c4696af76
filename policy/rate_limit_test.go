package policy

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func TestRateLimitPolicyAdmitsBurstThenThrottles(t *testing.T) {
	p := NewRateLimitPolicy(rate.Every(time.Hour), 2)

	if !p.CanRun(nil) {
		t.Fatal("first CanRun should be admitted from the burst allowance")
	}
	if !p.CanRun(nil) {
		t.Fatal("second CanRun should be admitted from the burst allowance")
	}
	if p.CanRun(nil) {
		t.Fatal("third CanRun should be throttled once the burst allowance is spent")
	}
}

// TestRateLimitPolicyCapsTotalAdmissionsUnderConcurrentCallers fans out many
// goroutines racing CanRun against a shared policy and checks the total
// admitted never exceeds the configured burst, joined with errgroup the way
// a concurrent-producer caller of this policy would.
func TestRateLimitPolicyCapsTotalAdmissionsUnderConcurrentCallers(t *testing.T) {
	p := NewRateLimitPolicy(rate.Every(time.Hour), 5)

	var admitted atomic.Int64
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			if p.CanRun(nil) {
				admitted.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup.Wait() = %v", err)
	}

	if got := admitted.Load(); got != 5 {
		t.Fatalf("admitted = %d; want 5 (the burst size)", got)
	}
}

func TestRateLimitPolicyReleaseAndFreeAreNoops(t *testing.T) {
	p := NewRateLimitPolicy(rate.Every(time.Hour), 1)
	p.CanRun(nil)
	p.Release(nil)
	p.Free(nil)
	if p.CanRun(nil) {
		t.Fatal("Release/Free must not refill the limiter's token bucket")
	}
}

package reportlimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"scamwatch/internal/config"
)

func TestLimitPerReporter(t *testing.T) {
	module := New(config.UploadConfig{SubmissionLimit: 2, SubmissionWindow: 10 * time.Minute})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, ok, _ := module.Reserve("u1", now.Add(time.Duration(i)*time.Minute)); !ok {
			t.Fatalf("submission %d unexpectedly throttled", i+1)
		}
	}

	_, ok, wait := module.Reserve("u1", now.Add(2*time.Minute))
	if ok {
		t.Fatalf("expected third submission to be throttled")
	}
	if wait != 8*time.Minute {
		t.Fatalf("expected 8m wait, got %s", wait)
	}
	if _, ok, _ := module.Reserve("u2", now); !ok {
		t.Fatalf("other reporters must not share the limit")
	}
	if _, ok, _ := module.Reserve("u1", now.Add(10*time.Minute+time.Second)); !ok {
		t.Fatalf("expected the oldest submission to have expired")
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	module := New(config.UploadConfig{SubmissionLimit: 1, SubmissionWindow: time.Minute})
	now := time.Now()
	for i := 0; i < 3; i++ {
		reservation, ok, _ := module.Reserve("u1", now)
		if !ok {
			t.Fatalf("released attempts must not use up the limit")
		}
		reservation.Release()
	}

	if _, ok, _ := module.Reserve("u1", now); !ok {
		t.Fatalf("expected slot after releases")
	}
	if _, ok, _ := module.Reserve("u1", now); ok {
		t.Fatalf("expected kept reservation to count")
	}
}

func TestConcurrentReservationsRespectLimit(t *testing.T) {
	module := New(config.UploadConfig{SubmissionLimit: 2, SubmissionWindow: 10 * time.Minute})
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := module.Reserve("u1", now); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 2 {
		t.Fatalf("expected 2 concurrent submissions to pass, got %d", granted)
	}
}

func TestDisabled(t *testing.T) {
	module := New(config.UploadConfig{})
	if module.Enabled() {
		t.Fatalf("expected zero limit to disable throttling")
	}
	reservation, ok, _ := module.Reserve("u1", time.Now())
	if !ok {
		t.Fatalf("disabled limiter must allow everything")
	}
	reservation.Release()
	if module.Tracked() != 0 {
		t.Fatalf("disabled limiter must not track reporters")
	}

	var missing *Module
	if _, ok, _ := missing.Reserve("u1", time.Now()); !ok {
		t.Fatalf("nil limiter must allow everything")
	}
}

func TestSweepDropsIdleReporters(t *testing.T) {
	module := New(config.UploadConfig{SubmissionLimit: 1, SubmissionWindow: time.Minute})
	now := time.Now()
	for i := 0; i < sweepThreshold; i++ {
		module.Reserve(fmt.Sprintf("u%d", i), now)
	}
	module.Reserve("late", now.Add(2*time.Minute))
	if tracked := module.Tracked(); tracked != 1 {
		t.Fatalf("expected idle reporters to be swept, %d still tracked", tracked)
	}
}

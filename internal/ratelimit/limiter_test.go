package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/mocks"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/ratelimit"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(cfg config.RateLimitConfig) (*ratelimit.Limiter, *mocks.MockRateLimitRepository, *fakeClock) {
	repo := mocks.NewMockRateLimitRepository()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewLimiter(repo, cfg, zerolog.Nop())
	limiter.SetClock(clock.Now)
	return limiter, repo, clock
}

func TestLimiter_Window(t *testing.T) {
	limiter, _, clock := newLimiter(config.RateLimitConfig{Window: 60 * time.Second})
	ctx := context.Background()

	d, err := limiter.Check(ctx, "203.0.113.7")
	if err != nil || !d.Allowed {
		t.Fatalf("Expected first submission allowed, got %+v %v", d, err)
	}
	if err := limiter.Record(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	clock.Advance(59*time.Second + 500*time.Millisecond)
	d, _ = limiter.Check(ctx, "203.0.113.7")
	if d.Allowed {
		t.Fatal("Expected denial inside the window")
	}
	if d.RetryAfterSeconds() != 1 {
		t.Errorf("Expected 1s retry hint, got %d", d.RetryAfterSeconds())
	}

	// other identities are independent
	if d, _ := limiter.Check(ctx, "198.51.100.1"); !d.Allowed {
		t.Error("Expected other identity to be allowed")
	}

	clock.Advance(500 * time.Millisecond)
	if d, _ := limiter.Check(ctx, "203.0.113.7"); !d.Allowed {
		t.Error("Expected submission allowed exactly at the window boundary")
	}
}

func TestLimiter_DeniedCheckDoesNotResetWindow(t *testing.T) {
	limiter, repo, clock := newLimiter(config.RateLimitConfig{Window: time.Minute})
	ctx := context.Background()

	limiter.Record(ctx, "id")
	recorded := repo.Entries["id"]

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		limiter.Check(ctx, "id")
	}
	if !repo.Entries["id"].Equal(recorded) {
		t.Error("Expected denied checks to leave the stored timestamp alone")
	}

	clock.Advance(10 * time.Second)
	if d, _ := limiter.Check(ctx, "id"); !d.Allowed {
		t.Error("Expected allowed once 60s passed since the accepted submission")
	}
}

func TestLimiter_AcceptedSubmissionsSeparatedByWindow(t *testing.T) {
	limiter, _, clock := newLimiter(config.RateLimitConfig{Window: time.Minute})
	ctx := context.Background()

	var accepted []time.Time
	for i := 0; i < 300; i++ {
		if d, _ := limiter.Check(ctx, "id"); d.Allowed {
			limiter.Record(ctx, "id")
			accepted = append(accepted, clock.Now())
		}
		clock.Advance(7 * time.Second)
	}
	for i := 1; i < len(accepted); i++ {
		if gap := accepted[i].Sub(accepted[i-1]); gap < time.Minute {
			t.Fatalf("Accepted submissions %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestLimiter_Anonymous(t *testing.T) {
	shared, _, _ := newLimiter(config.RateLimitConfig{Window: time.Minute})
	if d, err := shared.Check(context.Background(), ratelimit.AnonymousIdentity); err != nil || !d.Allowed {
		t.Errorf("Expected anonymous bucket to be allowed, got %+v %v", d, err)
	}

	strict, _, _ := newLimiter(config.RateLimitConfig{Window: time.Minute, RejectAnonymous: true})
	_, err := strict.Check(context.Background(), ratelimit.AnonymousIdentity)
	if !errs.Is(err, errs.KindInvalid) {
		t.Errorf("Expected invalid error for anonymous caller, got %v", err)
	}
}

func TestLimiter_StoreFailureIsBusy(t *testing.T) {
	limiter, repo, _ := newLimiter(config.RateLimitConfig{Window: time.Minute})
	repo.LastAcceptedFunc = func(ctx context.Context, identity string) (time.Time, bool, error) {
		return time.Time{}, false, errors.New("connection refused")
	}

	_, err := limiter.Check(context.Background(), "id")
	if !errs.Is(err, errs.KindBusy) {
		t.Errorf("Expected busy error, got %v", err)
	}
}

func TestDeniedError(t *testing.T) {
	err := ratelimit.DeniedError(ratelimit.Decision{RetryAfter: 42100 * time.Millisecond})
	if !errs.Is(err, errs.KindRateLimited) {
		t.Errorf("Expected rate limited kind, got %v", err)
	}
	if errs.Message(err) != "Rate limit exceeded. Please wait 43 seconds before submitting again." {
		t.Errorf("Unexpected message %q", errs.Message(err))
	}
	if got := errs.RetryAfterSeconds(err); got != 43 {
		t.Errorf("Expected retry hint of 43 seconds, got %d", got)
	}
	if errs.RetryAfterSeconds(errors.New("plain")) != 0 {
		t.Error("Expected no retry hint on a plain error")
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name     string
		clientIP string
		want     string
	}{
		{name: "ipv4", clientIP: "203.0.113.7", want: "203.0.113.7"},
		{name: "ipv6 is canonicalized", clientIP: "2001:DB8:0:0::1", want: "2001:db8::1"},
		{name: "surrounding space", clientIP: " 192.0.2.9 ", want: "192.0.2.9"},
		{name: "not an address", clientIP: "not-an-ip", want: ratelimit.AnonymousIdentity},
		{name: "empty", clientIP: "", want: ratelimit.AnonymousIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ratelimit.Identity(tt.clientIP); got != tt.want {
				t.Errorf("Identity() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLimiter_ClaimHoldsIdentityUntilRelease(t *testing.T) {
	limiter, _, _ := newLimiter(config.RateLimitConfig{Window: 60 * time.Second})
	ctx := context.Background()

	d, release, err := limiter.Claim(ctx, "203.0.113.7")
	if err != nil || !d.Allowed || release == nil {
		t.Fatalf("Expected first claim allowed, got %+v %v", d, err)
	}

	// nothing recorded yet, the in-flight claim alone denies
	d2, release2, err := limiter.Claim(ctx, "203.0.113.7")
	if err != nil || d2.Allowed || release2 != nil {
		t.Fatalf("Expected concurrent claim denied, got %+v %v", d2, err)
	}
	if d2.RetryAfterSeconds() != 60 {
		t.Errorf("Expected full-window retry hint, got %d", d2.RetryAfterSeconds())
	}

	if d, release3, _ := limiter.Claim(ctx, "198.51.100.1"); !d.Allowed {
		t.Error("Expected other identity to be allowed")
	} else {
		release3()
	}

	release()
	d, release, err = limiter.Claim(ctx, "203.0.113.7")
	if err != nil || !d.Allowed {
		t.Fatalf("Expected claim allowed after release, got %+v %v", d, err)
	}
	release()
}

func TestLimiter_ClaimAfterRecordIsDenied(t *testing.T) {
	limiter, _, _ := newLimiter(config.RateLimitConfig{Window: 60 * time.Second})
	ctx := context.Background()

	_, release, _ := limiter.Claim(ctx, "203.0.113.7")
	if err := limiter.Record(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	release()

	d, release, err := limiter.Claim(ctx, "203.0.113.7")
	if err != nil || d.Allowed || release != nil {
		t.Errorf("Expected claim denied by the recorded window, got %+v %v", d, err)
	}
}

// Package ratelimit throttles accepted submissions per submitter identity.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/metrics"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/repository"
)

// AnonymousIdentity is the shared bucket for callers without a usable origin
const AnonymousIdentity = "anonymous"

// Decision is the outcome of a rate-limit check
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Limiter is a fixed-window-per-identity throttle over a durable store.
// Check never writes; only Record moves the window.
type Limiter struct {
	repo            repository.RateLimitRepository
	window          time.Duration
	rejectAnonymous bool
	now             func() time.Time
	log             zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewLimiter creates a limiter backed by repo
func NewLimiter(repo repository.RateLimitRepository, cfg config.RateLimitConfig, log zerolog.Logger) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		repo:            repo,
		window:          window,
		rejectAnonymous: cfg.RejectAnonymous,
		now:             time.Now,
		log:             log.With().Str("component", "ratelimit").Logger(),
		inflight:        make(map[string]struct{}),
	}
}

// SetClock replaces the time source
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Window returns the cooldown window
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check reports whether identity may submit now
func (l *Limiter) Check(ctx context.Context, identity string) (Decision, error) {
	if identity == AnonymousIdentity && l.rejectAnonymous {
		return Decision{}, errs.E(errs.KindInvalid, "Unable to identify the submitter; submissions without a network origin are not accepted", nil)
	}

	last, ok, err := l.repo.LastAccepted(ctx, identity)
	if err != nil {
		l.log.Error().Err(err).Str("identity", identity).Msg("Rate limit lookup failed")
		return Decision{}, errs.E(errs.KindBusy, "System busy, please try again", err)
	}
	if !ok {
		return Decision{Allowed: true}, nil
	}

	elapsed := l.now().Sub(last)
	if elapsed >= l.window {
		return Decision{Allowed: true}, nil
	}

	retry := l.window - elapsed
	if retry > l.window {
		retry = l.window
	}
	metrics.RateLimitDenials.Inc()
	l.log.Info().Str("identity", identity).Dur("retry_after", retry).Msg("Submission throttled")
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// Claim checks identity and, when allowed, holds it until release is called so that
// a concurrent request from the same identity in this process is denied instead of
// racing past Check before Record lands. release is nil unless the decision allows.
func (l *Limiter) Claim(ctx context.Context, identity string) (Decision, func(), error) {
	l.mu.Lock()
	if _, busy := l.inflight[identity]; busy {
		l.mu.Unlock()
		metrics.RateLimitDenials.Inc()
		l.log.Info().Str("identity", identity).Msg("Submission throttled while another is in flight")
		return Decision{Allowed: false, RetryAfter: l.window}, nil, nil
	}
	l.inflight[identity] = struct{}{}
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		delete(l.inflight, identity)
		l.mu.Unlock()
	}

	d, err := l.Check(ctx, identity)
	if err != nil || !d.Allowed {
		release()
		return d, nil, err
	}
	return d, release, nil
}

// Record marks identity as having just had a submission accepted
func (l *Limiter) Record(ctx context.Context, identity string) error {
	if err := l.repo.SetLastAccepted(ctx, identity, l.now()); err != nil {
		return errs.Wrapf(err, "record submission for %s", identity)
	}
	return nil
}

// DeniedError builds the user-facing throttle error for a denied decision
func DeniedError(d Decision) error {
	err := errs.E(errs.KindRateLimited,
		fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before submitting again.", d.RetryAfterSeconds()), nil)
	err.RetryAfter = d.RetryAfterSeconds()
	return err
}

// Identity normalizes the client address resolved by the HTTP layer, which only honours
// forwarding headers from trusted proxies. Anything that is not an IP address shares the anonymous bucket.
func Identity(clientIP string) string {
	if ip := parseIP(clientIP); ip != "" {
		return ip
	}
	return AnonymousIdentity
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

const (
	anonymousRateLimitKey = "anonymous"

	defaultRateLimitWindow = 60 * time.Second
	defaultRateLimitMax    = 10
)

// RateLimitRequest names the budget for one call. Zero values fall back to the guard defaults.
type RateLimitRequest struct {
	WindowSeconds int
	MaxRequests   int
	Identifier    string
}

// RateGuardDeps bundles collaborators required to construct the rate guard.
type RateGuardDeps struct {
	Limits        repositories.RateLimitRepository
	Blocklist     repositories.BlocklistRepository
	DefaultWindow time.Duration
	DefaultMax    int
	Clock         func() time.Time
	Metrics       OrderMetrics
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type rateGuard struct {
	limits        repositories.RateLimitRepository
	blocklist     repositories.BlocklistRepository
	defaultWindow time.Duration
	defaultMax    int
	clock         func() time.Time
	metrics       OrderMetrics
	logger        func(context.Context, string, map[string]any)
}

var _ RateGuard = (*rateGuard)(nil)

// NewRateGuard wires the fixed-window limiter.
func NewRateGuard(deps RateGuardDeps) (RateGuard, error) {
	if deps.Limits == nil {
		return nil, errors.New("rate guard: rate limit repository is required")
	}
	window := deps.DefaultWindow
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	maxRequests := deps.DefaultMax
	if maxRequests <= 0 {
		maxRequests = defaultRateLimitMax
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &rateGuard{
		limits:        deps.Limits,
		blocklist:     deps.Blocklist,
		defaultWindow: window,
		defaultMax:    maxRequests,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Require admits the call or returns a *RateLimitError. Blocked addresses are rejected before any
// counter is touched.
func (g *rateGuard) Require(ctx context.Context, req RateLimitRequest) error {
	address := requestctx.ClientAddress(ctx)
	if address != "" && g.blocklist != nil {
		blocked, err := g.blocklist.IsBlocked(ctx, address)
		if err != nil {
			return fmt.Errorf("rate guard: blocklist lookup: %w", err)
		}
		if blocked {
			g.metrics.RateLimited(ctx, true)
			g.logger(ctx, "ratelimit.blocked", map[string]any{"address": address})
			return fmt.Errorf("%w: %s", ErrAddressBlocked, address)
		}
	}

	key := strings.TrimSpace(req.Identifier)
	if key == "" {
		key = address
	}
	if key == "" {
		key = anonymousRateLimitKey
	}

	window := g.defaultWindow
	if req.WindowSeconds > 0 {
		window = time.Duration(req.WindowSeconds) * time.Second
	}
	maxRequests := g.defaultMax
	if req.MaxRequests > 0 {
		maxRequests = req.MaxRequests
	}

	now := g.clock()
	_, err := g.limits.Apply(ctx, key, window, func(current *domain.RateLimitRecord) (domain.RateLimitRecord, error) {
		next, allowed, retryAfter := advanceWindow(current, now, window, maxRequests)
		if !allowed {
			return domain.RateLimitRecord{}, &RateLimitError{Key: key, RetryAfter: retryAfter}
		}
		return next, nil
	})
	if err == nil {
		return nil
	}

	var limited *RateLimitError
	if errors.As(err, &limited) {
		g.metrics.RateLimited(ctx, false)
		g.logger(ctx, "ratelimit.denied", map[string]any{
			"key":        key,
			"retryAfter": limited.RetryAfter.String(),
		})
		return limited
	}
	return fmt.Errorf("rate guard: update counter: %w", err)
}

// advanceWindow applies the fixed-window rules to the stored record. The window has elapsed when the
// last admitted request is strictly older than now minus window. A denial leaves the record untouched.
func advanceWindow(current *domain.RateLimitRecord, now time.Time, window time.Duration, maxRequests int) (domain.RateLimitRecord, bool, time.Duration) {
	nowMillis := now.UnixMilli()
	if current == nil || current.LastRequest < nowMillis-window.Milliseconds() {
		return domain.RateLimitRecord{Count: 1, LastRequest: nowMillis}, true, 0
	}
	if current.Count < maxRequests {
		return domain.RateLimitRecord{Count: current.Count + 1, LastRequest: nowMillis}, true, 0
	}

	retryAfter := time.UnixMilli(current.LastRequest).Add(window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return *current, false, retryAfter.Round(time.Second)
}

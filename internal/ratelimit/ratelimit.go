// Package ratelimit enforces sliding-window request budgets keyed by
// (limit class, client key). The window store is pluggable: in-memory by
// default, Redis when the limit state must be shared across gateways.
package ratelimit

import (
	"context"
	"time"

	"harbormaster/pkg/logging"
)

// DefaultClass is the budget applied when no class-specific budget exists.
const DefaultClass = "default"

// Budget is a requests-per-window quota for one limit class.
type Budget struct {
	Requests      int `yaml:"requests" json:"requests"`
	WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
}

// Window returns the budget window as a duration.
func (b Budget) Window() time.Duration {
	return time.Duration(b.WindowSeconds) * time.Second
}

// Store tracks request timestamps per key within a sliding window.
// Take must atomically purge expired entries, count, and insert; it returns
// whether the request fits the budget and how long until a slot frees up.
type Store interface {
	Take(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, retryAfter time.Duration, err error)
}

// Decision is the outcome of a limit check, rendered into rate headers.
type Decision struct {
	Allowed    bool
	Class      string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

// Limiter checks requests against per-class budgets.
type Limiter struct {
	budgets  map[string]Budget
	fallback Budget
	store    Store
	logger   logging.Logger
}

// New creates a limiter over the given class budgets. The "default" class
// is the fallback for unclassified routes.
func New(budgets map[string]Budget, store Store, logger logging.Logger) *Limiter {
	fallback, ok := budgets[DefaultClass]
	if !ok {
		fallback = Budget{Requests: 100, WindowSeconds: 60}
	}
	// Copy so the table stays immutable from the caller's side
	owned := make(map[string]Budget, len(budgets))
	for class, b := range budgets {
		owned[class] = b
	}
	return &Limiter{
		budgets:  owned,
		fallback: fallback,
		store:    store,
		logger:   logger,
	}
}

// RegisterClass adds a budget for a limit class. Called during startup
// wiring only; the budget table is read-only once traffic flows.
func (l *Limiter) RegisterClass(class string, budget Budget) {
	if budget.Requests > 0 && budget.WindowSeconds > 0 {
		l.budgets[class] = budget
	}
}

// HasClass reports whether a class has its own budget.
func (l *Limiter) HasClass(class string) bool {
	_, ok := l.budgets[class]
	return ok
}

// Budgets returns a copy of the budget table for config reporting.
func (l *Limiter) Budgets() map[string]Budget {
	out := make(map[string]Budget, len(l.budgets))
	for class, b := range l.budgets {
		out[class] = b
	}
	return out
}

// Allow checks one request against the class budget. If the window store is
// unreachable the limiter fails open: gateway availability wins over strict
// limiting.
func (l *Limiter) Allow(ctx context.Context, class, clientKey string) Decision {
	budget, ok := l.budgets[class]
	if !ok {
		class = DefaultClass
		budget = l.fallback
	}

	allowed, retryAfter, err := l.store.Take(ctx, class+":"+clientKey, budget.Window(), budget.Requests)
	if err != nil {
		if l.logger != nil {
			l.logger.WithFields(logging.Fields{
				"class": class,
				"key":   clientKey,
				"error": err,
			}).Warn("Rate limit store unavailable, failing open")
		}
		return Decision{Allowed: true, Class: class, Limit: budget.Requests, Window: budget.Window()}
	}

	if !allowed && l.logger != nil {
		l.logger.WithFields(logging.Fields{
			"class":       class,
			"key":         clientKey,
			"limit":       budget.Requests,
			"window":      budget.Window().String(),
			"retry_after": retryAfter.String(),
		}).Warn("Rate limit exceeded")
	}

	return Decision{
		Allowed:    allowed,
		Class:      class,
		Limit:      budget.Requests,
		Window:     budget.Window(),
		RetryAfter: retryAfter,
	}
}

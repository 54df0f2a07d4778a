package fsp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

// Profile describes what a provider accepts and how hard it may be driven.
type Profile struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Channels      []Channel       `json:"channels"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
	Timeout       time.Duration   `json:"timeout"`
	MaxConcurrent int64           `json:"max_concurrent"`
	Active        bool            `json:"active"`
}

func (p Profile) SupportsChannel(ch Channel) bool {
	for _, c := range p.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// SupportsAmount treats a zero maximum as unbounded.
func (p Profile) SupportsAmount(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) {
		return false
	}
	if !p.MaxAmount.IsZero() && amount.GreaterThan(p.MaxAmount) {
		return false
	}
	return true
}

func (p Profile) Supports(ch Channel, amount decimal.Decimal) bool {
	return p.Active && p.SupportsChannel(ch) && p.SupportsAmount(amount)
}

type Health struct {
	Code      string    `json:"code"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
	Error     string    `json:"error,omitempty"`
	InFlight  int64     `json:"in_flight"`
}

type provider struct {
	adapter  Adapter
	profile  Profile
	sem      *semaphore.Weighted
	inflight atomic.Int64

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
	lastErr   string
}

// Registry resolves adapters for payments and bounds per-provider concurrency.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*provider
	order     []string
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]*provider),
		logger:    logger,
	}
}

func (r *Registry) Register(adapter Adapter, profile Profile) error {
	code := adapter.Code()
	if code == "" {
		return fmt.Errorf("adapter code is required")
	}
	if profile.Code == "" {
		profile.Code = code
	}
	if profile.Code != code {
		return fmt.Errorf("profile code %s does not match adapter %s", profile.Code, code)
	}
	if profile.MaxConcurrent <= 0 {
		profile.MaxConcurrent = 5
	}
	if profile.Timeout <= 0 {
		profile.Timeout = 30 * time.Second
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[code]; exists {
		return fmt.Errorf("provider %s already registered", code)
	}
	r.providers[code] = &provider{
		adapter: adapter,
		profile: profile,
		sem:     semaphore.NewWeighted(profile.MaxConcurrent),
		healthy: true,
	}
	r.order = append(r.order, code)

	r.logger.Info("fsp registered",
		"fsp_code", code,
		"channels", profile.Channels,
		"max_concurrent", profile.MaxConcurrent)
	return nil
}

// Resolve picks the adapter for a payment. A preferred code pins the
// provider; otherwise the least loaded healthy provider that supports the
// channel and amount wins, ties going to registration order.
func (r *Registry) Resolve(preferred string, ch Channel, amount decimal.Decimal) (Adapter, Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preferred != "" {
		p, ok := r.providers[preferred]
		if !ok || !p.profile.Supports(ch, amount) {
			return nil, Profile{}, fmt.Errorf("%w: %s", ErrNoProvider, preferred)
		}
		if !p.isHealthy() {
			return nil, Profile{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, preferred)
		}
		return p.adapter, p.profile, nil
	}

	var (
		best      *provider
		supported bool
	)
	for _, code := range r.order {
		p := r.providers[code]
		if !p.profile.Supports(ch, amount) {
			continue
		}
		supported = true
		if !p.isHealthy() {
			continue
		}
		if best == nil || p.inflight.Load() < best.inflight.Load() {
			best = p
		}
	}

	switch {
	case best != nil:
		return best.adapter, best.profile, nil
	case supported:
		return nil, Profile{}, ErrProviderUnavailable
	default:
		return nil, Profile{}, ErrNoProvider
	}
}

// Acquire takes one submission slot for the provider. The returned release
// must be called once the submission returns.
func (r *Registry) Acquire(ctx context.Context, code string) (func(), error) {
	r.mu.RLock()
	p, ok := r.providers[code]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, code)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.inflight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inflight.Add(-1)
			p.sem.Release(1)
		})
	}, nil
}

func (r *Registry) Get(code string) (Adapter, Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[code]
	if !ok {
		return nil, Profile{}, false
	}
	return p.adapter, p.profile, true
}

func (r *Registry) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.providers[code].profile)
	}
	return out
}

// CheckHealth pings every provider that supports it. Providers without a
// health endpoint are assumed healthy.
func (r *Registry) CheckHealth(ctx context.Context) []Health {
	r.mu.RLock()
	providers := make([]*provider, 0, len(r.order))
	for _, code := range r.order {
		providers = append(providers, r.providers[code])
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range providers {
		hc, ok := p.adapter.(HealthChecker)
		if !ok {
			p.setHealth(nil)
			continue
		}
		wg.Add(1)
		go func(p *provider, hc HealthChecker) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, p.profile.Timeout)
			defer cancel()
			err := hc.Ping(pingCtx)
			if err != nil {
				r.logger.Warn("fsp health check failed", "fsp_code", p.profile.Code, "error", err)
			}
			p.setHealth(err)
		}(p, hc)
	}
	wg.Wait()

	return r.Health()
}

func (r *Registry) Health() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.order))
	for _, code := range r.order {
		p := r.providers[code]
		p.mu.Lock()
		out = append(out, Health{
			Code:      code,
			Healthy:   p.healthy,
			CheckedAt: p.checkedAt,
			Error:     p.lastErr,
			InFlight:  p.inflight.Load(),
		})
		p.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (p *provider) isHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

func (p *provider) setHealth(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = err == nil
	p.checkedAt = time.Now().UTC()
	p.lastErr = ""
	if err != nil {
		p.lastErr = err.Error()
	}
}

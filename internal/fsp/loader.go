package fsp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal"
	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
)

// BuildRegistry registers the sandbox when enabled, every provider from the
// config file, and every active stored configuration whose code the config
// file does not already define.
func BuildRegistry(ctx context.Context, cfg internal.FSPConfig, repo RepositoryAPI, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry(logger)

	if cfg.SandboxEnabled {
		if err := registry.Register(NewSandbox(), SandboxProfile()); err != nil {
			return nil, err
		}
	}

	for _, pc := range cfg.Providers {
		profile, err := profileFromConfig(pc, cfg.DefaultTimeout)
		if err != nil {
			return nil, err
		}
		adapter := NewHTTPAdapter(HTTPAdapterConfig{
			Code:    pc.Code,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			Timeout: profile.Timeout,
		}, logger)
		if err := registry.Register(adapter, profile); err != nil {
			return nil, err
		}
	}

	if repo == nil {
		return registry, nil
	}

	stored, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fsp configurations: %w", err)
	}
	for _, c := range stored {
		if !c.Active || c.BaseURL == "" {
			continue
		}
		if _, _, exists := registry.Get(c.Code); exists {
			continue
		}
		profile := ProfileFromConfiguration(c)
		adapter := NewHTTPAdapter(HTTPAdapterConfig{
			Code:    c.Code,
			BaseURL: c.BaseURL,
			APIKey:  c.APIKey,
			Timeout: profile.Timeout,
		}, logger)
		if err := registry.Register(adapter, profile); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func profileFromConfig(pc internal.ProviderConfig, defaultTimeout time.Duration) (Profile, error) {
	p := Profile{
		Code:          pc.Code,
		Name:          pc.Name,
		Timeout:       pc.Timeout,
		MaxConcurrent: pc.MaxConcurrent,
		Active:        true,
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}

	for _, ch := range pc.Channels {
		c := Channel(ch)
		if !c.Valid() {
			return Profile{}, fmt.Errorf("provider %s: unknown channel %s", pc.Code, ch)
		}
		p.Channels = append(p.Channels, c)
	}

	var err error
	if p.MinAmount, err = parseAmount(pc.MinAmount); err != nil {
		return Profile{}, fmt.Errorf("provider %s: min_amount: %w", pc.Code, err)
	}
	if p.MaxAmount, err = parseAmount(pc.MaxAmount); err != nil {
		return Profile{}, fmt.Errorf("provider %s: max_amount: %w", pc.Code, err)
	}
	return p, nil
}

func ProfileFromConfiguration(c *fspmodel.Configuration) Profile {
	channels := make([]Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		channels = append(channels, Channel(ch))
	}
	return Profile{
		Code:          c.Code,
		Name:          c.Name,
		Channels:      channels,
		MinAmount:     c.MinAmount,
		MaxAmount:     c.MaxAmount,
		Timeout:       time.Duration(c.TimeoutSeconds) * time.Second,
		MaxConcurrent: c.MaxConcurrent,
		Active:        c.Active,
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

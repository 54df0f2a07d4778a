package fsp

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
)

// CatalogueEntry is one provider in a seed file.
type CatalogueEntry struct {
	Code           string   `yaml:"code"`
	Name           string   `yaml:"name"`
	Channels       []string `yaml:"channels"`
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	MinAmount      string   `yaml:"min_amount"`
	MaxAmount      string   `yaml:"max_amount"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxConcurrent  int64    `yaml:"max_concurrent"`
	Active         *bool    `yaml:"active"`
	CallbackSecret string   `yaml:"callback_secret"`
}

type Catalogue struct {
	Providers []CatalogueEntry `yaml:"providers"`
}

// ParseCatalogue decodes a seed file. Unknown keys are rejected.
func ParseCatalogue(r io.Reader) (*Catalogue, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalogue
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return &Catalogue{}, nil
		}
		return nil, fmt.Errorf("decode fsp catalogue: %w", err)
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Code == "" || p.Name == "" {
			return nil, fmt.Errorf("providers[%d]: code and name are required", i)
		}
		if seen[p.Code] {
			return nil, fmt.Errorf("providers[%d]: duplicate code %s", i, p.Code)
		}
		seen[p.Code] = true
		for _, ch := range p.Channels {
			if !Channel(ch).Valid() {
				return nil, fmt.Errorf("provider %s: unknown channel %s", p.Code, ch)
			}
		}
	}
	return &c, nil
}

// Configuration converts the entry for storage, hashing the callback secret.
func (e CatalogueEntry) Configuration(bcryptCost int) (*fspmodel.Configuration, error) {
	minAmount, err := parseAmount(e.MinAmount)
	if err != nil {
		return nil, fmt.Errorf("provider %s: min_amount: %w", e.Code, err)
	}
	maxAmount, err := parseAmount(e.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("provider %s: max_amount: %w", e.Code, err)
	}
	if maxAmount.IsZero() {
		maxAmount = decimal.NewFromInt(1_000_000)
	}

	c := &fspmodel.Configuration{
		Code:           e.Code,
		Name:           e.Name,
		Channels:       e.Channels,
		BaseURL:        e.BaseURL,
		APIKey:         e.APIKey,
		MinAmount:      minAmount,
		MaxAmount:      maxAmount,
		TimeoutSeconds: e.TimeoutSeconds,
		MaxConcurrent:  e.MaxConcurrent,
		Active:         e.Active == nil || *e.Active,
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if e.CallbackSecret != "" {
		if c.CallbackSecretHash, err = HashCallbackSecret(e.CallbackSecret, bcryptCost); err != nil {
			return nil, fmt.Errorf("provider %s: hash callback secret: %w", e.Code, err)
		}
	}
	return c, nil
}

// Seed stores every catalogue provider. With replace set, existing
// configurations are removed first.
func Seed(ctx context.Context, repo RepositoryAPI, c *Catalogue, bcryptCost int, replace bool) (int, error) {
	configs := make([]*fspmodel.Configuration, 0, len(c.Providers))
	for _, entry := range c.Providers {
		cfg, err := entry.Configuration(bcryptCost)
		if err != nil {
			return 0, err
		}
		configs = append(configs, cfg)
	}

	if replace {
		if err := repo.DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("clear fsp configurations: %w", err)
		}
	}
	for _, cfg := range configs {
		if err := repo.Upsert(ctx, cfg); err != nil {
			return 0, fmt.Errorf("store fsp %s: %w", cfg.Code, err)
		}
	}
	return len(configs), nil
}

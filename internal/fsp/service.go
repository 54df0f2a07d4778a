package fsp

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/frahmantamala/disbursement/internal"
	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
)

type RepositoryAPI interface {
	List(ctx context.Context) ([]*fspmodel.Configuration, error)
	GetByCode(ctx context.Context, code string) (*fspmodel.Configuration, error)
	Upsert(ctx context.Context, c *fspmodel.Configuration) error
	DeleteAll(ctx context.Context) error
}

type ServiceAPI interface {
	Providers(ctx context.Context) []ProviderStatus
	CheckHealth(ctx context.Context) []Health
	VerifyCallback(ctx context.Context, code, token string) error
}

type ProviderStatus struct {
	Profile
	Health Health `json:"health"`
}

type Service struct {
	registry *Registry
	repo     RepositoryAPI
	logger   *slog.Logger
}

func NewService(registry *Registry, repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		repo:     repo,
		logger:   logger,
	}
}

func (s *Service) Providers(ctx context.Context) []ProviderStatus {
	health := make(map[string]Health)
	for _, h := range s.registry.Health() {
		health[h.Code] = h
	}

	profiles := s.registry.Profiles()
	out := make([]ProviderStatus, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProviderStatus{Profile: p, Health: health[p.Code]})
	}
	return out
}

func (s *Service) CheckHealth(ctx context.Context) []Health {
	return s.registry.CheckHealth(ctx)
}

// VerifyCallback checks a provider's callback token against the stored
// bcrypt hash. Providers without a stored secret cannot call back.
func (s *Service) VerifyCallback(ctx context.Context, code, token string) error {
	if token == "" {
		return apperrors.ErrInvalidCallbackAuth
	}

	cfg, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Type == apperrors.ErrorTypeNotFound {
			s.logger.Warn("callback from unknown fsp", "fsp_code", code)
			return apperrors.ErrInvalidCallbackAuth
		}
		return err
	}

	if cfg.CallbackSecretHash == "" || !cfg.Active {
		s.logger.Warn("callback rejected, fsp has no active callback secret", "fsp_code", code)
		return apperrors.ErrInvalidCallbackAuth
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cfg.CallbackSecretHash), []byte(token)); err != nil {
		s.logger.Warn("callback rejected, token mismatch", "fsp_code", code)
		return apperrors.ErrInvalidCallbackAuth
	}
	return nil
}

// HashCallbackSecret hashes a provider callback secret for storage.
func HashCallbackSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

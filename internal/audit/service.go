package audit

import (
	"context"
	"log/slog"

	auditmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/audit"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Trail(ctx context.Context, subjectID string) ([]*auditmodel.Entry, error) {
	return s.repo.Trail(ctx, subjectID)
}

func (s *Service) Verify(ctx context.Context, subjectID string) (*Verification, error) {
	entries, err := s.repo.Trail(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	v, err := VerifyChain(subjectID, entries)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		s.logger.Warn("audit chain verification failed",
			"subject_id", subjectID,
			"broken_at", *v.BrokenAt,
			"reason", v.Reason)
	}
	return v, nil
}

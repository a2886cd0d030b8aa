package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure SourceService implements the interface.
var _ driving.SourceService = (*SourceService)(nil)

// SourceService manages source configurations.
type SourceService struct {
	sourceStore driven.SourceStore
	syncStore   driven.SyncStateStore
	factory     driven.CollectorFactory
	now         func() time.Time
	log         *slog.Logger
}

// NewSourceService creates a new source service.
func NewSourceService(
	sourceStore driven.SourceStore,
	syncStore driven.SyncStateStore,
	factory driven.CollectorFactory,
) *SourceService {
	return &SourceService{
		sourceStore: sourceStore,
		syncStore:   syncStore,
		factory:     factory,
		now:         time.Now,
		log:         logger.For("sources"),
	}
}

// Add creates a new source configuration.
func (s *SourceService) Add(ctx context.Context, source domain.Source) error {
	if source.ID == "" {
		return domain.ErrInvalidInput
	}
	if err := source.Validate(); err != nil {
		return err
	}
	if s.factory != nil {
		if err := s.ValidateConfig(ctx, source.Strategy, source.Config); err != nil {
			return err
		}
	}
	existing, err := s.sourceStore.Get(ctx, source.ID)
	if err == nil && existing != nil {
		return domain.ErrAlreadyExists
	}
	now := s.now().UTC()
	source.CreatedAt, source.UpdatedAt = now, now
	return s.sourceStore.Save(ctx, source)
}

// Get retrieves a source by ID.
func (s *SourceService) Get(ctx context.Context, id string) (*domain.Source, error) {
	return s.sourceStore.Get(ctx, id)
}

// List returns all configured sources.
func (s *SourceService) List(ctx context.Context) ([]domain.Source, error) {
	return s.sourceStore.List(ctx)
}

// Update modifies an existing source configuration.
func (s *SourceService) Update(ctx context.Context, source domain.Source) error {
	if source.ID == "" {
		return domain.ErrInvalidInput
	}
	existing, err := s.sourceStore.Get(ctx, source.ID)
	if err != nil {
		return domain.ErrNotFound
	}
	if err := source.Validate(); err != nil {
		return err
	}
	source.CreatedAt = existing.CreatedAt
	source.UpdatedAt = s.now().UTC()
	return s.sourceStore.Save(ctx, source)
}

// Remove deletes a source and its collection state. Committed rows stay:
// they are evidence for insights already raised.
func (s *SourceService) Remove(ctx context.Context, id string) error {
	if s.syncStore != nil {
		if err := s.syncStore.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete sync state: %w", err)
		}
	}
	return s.sourceStore.Delete(ctx, id)
}

// Sync mirrors declared sources into the store. New sources are created and
// changed ones updated; stored sources missing from the declaration are kept.
// Invalid declarations are skipped and reported together.
func (s *SourceService) Sync(ctx context.Context, declared []domain.Source) ([]string, error) {
	var changed []string
	var errs []error
	for _, src := range declared {
		if err := src.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		existing, err := s.sourceStore.Get(ctx, src.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			now := s.now().UTC()
			src.CreatedAt, src.UpdatedAt = now, now
		case err != nil:
			errs = append(errs, fmt.Errorf("load source %s: %w", src.ID, err))
			continue
		case sameSource(*existing, src):
			continue
		default:
			src.CreatedAt = existing.CreatedAt
			src.UpdatedAt = s.now().UTC()
		}
		if err := s.sourceStore.Save(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("save source %s: %w", src.ID, err))
			continue
		}
		changed = append(changed, src.ID)
		s.log.Debug("source synced from config", "source", src.ID, "strategy", src.Strategy)
	}
	return changed, errors.Join(errs...)
}

func sameSource(a, b domain.Source) bool {
	return a.Strategy == b.Strategy &&
		a.Dataset == b.Dataset &&
		a.Name == b.Name &&
		a.RefreshInterval == b.RefreshInterval &&
		maps.Equal(a.Config, b.Config)
}

// ValidateConfig checks a strategy configuration by building, and then
// closing, a collector for it. No request is sent.
func (s *SourceService) ValidateConfig(ctx context.Context, strategy domain.Strategy, config map[string]string) error {
	if s.factory == nil {
		return fmt.Errorf("%w: no collector factory", domain.ErrUnsupportedStrategy)
	}
	trial := domain.Source{ID: "validate", Strategy: strategy, Dataset: "validate", Config: config}
	c, err := s.factory.Create(ctx, trial)
	if err != nil {
		return err
	}
	return c.Close()
}

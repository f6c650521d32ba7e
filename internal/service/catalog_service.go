package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var catalogTracer = otel.Tracer("service/catalog")

const typeCacheName = "saving_type"

// CatalogService manages savings products. Reads of single types go
// through a TTL cache; every write invalidates the affected entry.
type CatalogService struct {
	store   port.TypeCatalog
	cache   port.Cache[domain.SavingType]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store port.TypeCatalog, cache port.Cache[domain.SavingType], metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{store: store, cache: cache, metrics: metrics, logger: logger}
}

func typeKey(id int64) string {
	return "type:" + strconv.FormatInt(id, 10)
}

func (s *CatalogService) ListTypes(ctx context.Context) ([]domain.SavingType, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ListTypes")
	defer span.End()

	return s.store.ListTypes(ctx)
}

// GetType returns a product by id, served from cache when possible.
func (s *CatalogService) GetType(ctx context.Context, typeID int64) (*domain.SavingType, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetType")
	defer span.End()
	span.SetAttributes(attribute.Int64("type.id", typeID))

	if s.cache != nil {
		if t, ok := s.cache.Get(typeKey(typeID)); ok {
			s.metrics.IncrCacheHit(typeCacheName)
			return &t, nil
		}
		s.metrics.IncrCacheMiss(typeCacheName)
	}

	t, err := s.store.GetType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(typeKey(typeID), *t)
	}
	return t, nil
}

func validateType(t *domain.SavingType) error {
	switch {
	case strings.TrimSpace(t.TypeName) == "":
		return &domain.ErrValidation{Field: "typeName", Message: "typeName is required"}
	case t.TermMonths < 0:
		return &domain.ErrValidation{Field: "term", Message: "term must not be negative"}
	case !t.InterestRatePercent.IsPositive():
		return &domain.ErrValidation{Field: "interestRate", Message: "interestRate must be positive"}
	case t.MinimumDeposit.IsNegative():
		return &domain.ErrValidation{Field: "minimumDeposit", Message: "minimumDeposit must not be negative"}
	}
	return nil
}

// CreateType adds a new, active product.
func (s *CatalogService) CreateType(ctx context.Context, t domain.SavingType) (*domain.SavingType, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.CreateType")
	defer span.End()

	t.TypeName = strings.TrimSpace(t.TypeName)
	if err := validateType(&t); err != nil {
		return nil, err
	}
	t.IsActive = true

	created, err := s.store.CreateType(ctx, &t)
	if err != nil {
		s.metrics.IncrStoreError("catalog")
		s.logger.Error("create saving type failed", zap.String("type_name", t.TypeName), zap.Error(err))
		return nil, err
	}
	s.logger.Info("saving type created",
		zap.Int64("type_id", created.TypeID),
		zap.String("type_name", created.TypeName),
		zap.Int("term", created.TermMonths),
		zap.String("interest_rate", created.InterestRatePercent.String()),
	)
	return created, nil
}

// UpdateType applies a patch. Term and rate are frozen while any open
// book references the product.
func (s *CatalogService) UpdateType(ctx context.Context, typeID int64, patch domain.SavingTypePatch) (*domain.SavingType, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpdateType")
	defer span.End()
	span.SetAttributes(attribute.Int64("type.id", typeID))

	current, err := s.store.GetType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	next := *current

	if patch.TypeName != nil {
		next.TypeName = strings.TrimSpace(*patch.TypeName)
	}
	if patch.TermMonths != nil {
		next.TermMonths = *patch.TermMonths
	}
	if patch.InterestRatePercent != nil {
		next.InterestRatePercent = *patch.InterestRatePercent
	}
	if patch.MinimumDeposit != nil {
		next.MinimumDeposit = *patch.MinimumDeposit
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	if err := validateType(&next); err != nil {
		return nil, err
	}

	frozen := next.TermMonths != current.TermMonths || !next.InterestRatePercent.Equal(current.InterestRatePercent)
	updated, err := s.store.UpdateType(ctx, &next, frozen)
	var invalid *domain.ErrInvalidState
	if errors.As(err, &invalid) {
		s.logger.Warn("saving type change rejected", zap.Int64("type_id", typeID), zap.String("reason", invalid.Message))
		return nil, err
	}
	if err != nil {
		s.metrics.IncrStoreError("catalog")
		return nil, err
	}
	if s.cache != nil {
		s.cache.Delete(typeKey(typeID))
	}
	s.logger.Info("saving type updated", zap.Int64("type_id", typeID), zap.Bool("active", updated.IsActive))
	return updated, nil
}

// DeactivateType stops new books from being opened on the product.
// Existing books are not affected.
func (s *CatalogService) DeactivateType(ctx context.Context, typeID int64) (*domain.SavingType, error) {
	inactive := false
	return s.UpdateType(ctx, typeID, domain.SavingTypePatch{IsActive: &inactive})
}

// Regulations summarises the rules in force: the smallest minimum deposit
// across active products and the withdrawal windows.
func (s *CatalogService) Regulations(ctx context.Context) (*domain.Regulations, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.Regulations")
	defer span.End()

	types, err := s.store.ListTypes(ctx)
	if err != nil {
		return nil, err
	}

	reg := &domain.Regulations{
		CoolingOffDays:     coolingOffDays,
		InterestWindowDays: interestWindowDays,
	}
	for _, t := range types {
		if !t.IsActive {
			continue
		}
		if reg.ActiveSavingTypes == 0 || t.MinimumDeposit.LessThan(reg.MinimumDeposit) {
			reg.MinimumDeposit = t.MinimumDeposit
		}
		reg.ActiveSavingTypes++
	}
	return reg, nil
}

// Seed creates the given products when the catalog is empty and reports
// how many were created.
func (s *CatalogService) Seed(ctx context.Context, types []domain.SavingType) (int, error) {
	existing, err := s.store.ListTypes(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i, t := range types {
		if _, err := s.CreateType(ctx, t); err != nil {
			return i, err
		}
	}
	return len(types), nil
}

package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

const planCatalogCacheKey = "plans:catalog"

type planRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	FindByID(ctx context.Context, id string) (*models.Plan, error)
}

// PlanService serves the membership plan catalog.
type PlanService struct {
	repo   planRepository
	cache  *CacheService
	logger *zap.Logger
}

// NewPlanService constructs the plan service.
func NewPlanService(repo planRepository, cache *CacheService, logger *zap.Logger) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{repo: repo, cache: cache, logger: logger}
}

// List returns active plans decorated with tier labels, served from
// cache when available.
func (s *PlanService) List(ctx context.Context) ([]models.PlanListing, error) {
	var listings []models.PlanListing
	if hit, _ := s.cache.Get(ctx, planCatalogCacheKey, &listings); hit {
		return listings, nil
	}

	plans, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plans")
	}

	listings = LabelTiers(plans)
	if err := s.cache.Set(ctx, planCatalogCacheKey, listings, 0); err != nil {
		s.logger.Warn("failed to cache plan catalog", zap.Error(err))
	}
	return listings, nil
}

// LabelTiers assigns a presentation tier to each plan from its price
// percentile over the full list: top third premium, middle popular,
// bottom third basic. Pure function, no hidden state.
func LabelTiers(plans []models.Plan) []models.PlanListing {
	listings := make([]models.PlanListing, 0, len(plans))
	if len(plans) == 0 {
		return listings
	}

	prices := make([]float64, len(plans))
	for i, p := range plans {
		prices[i] = p.Price
	}
	sort.Float64s(prices)

	for _, p := range plans {
		rank := sort.SearchFloat64s(prices, p.Price)
		percentile := float64(rank) / float64(len(prices))
		tier := models.TierBasic
		switch {
		case percentile >= 2.0/3.0:
			tier = models.TierPremium
		case percentile >= 1.0/3.0:
			tier = models.TierPopular
		}
		listings = append(listings, models.PlanListing{Plan: p, Tier: tier})
	}
	return listings
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/pagination"
)

// CampaignEvents publishes campaign lifecycle notifications.
type CampaignEvents interface {
	PublishCampaignCreated(ctx context.Context, rule *domain.CampaignRule) error
	PublishCampaignUpdated(ctx context.Context, rule *domain.CampaignRule) error
}

// CacheInvalidator drops the cached active rule snapshot.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// CampaignService implements the business logic for campaign rule administration.
type CampaignService struct {
	repo    repository.CampaignRepository
	cache   CacheInvalidator
	events  CampaignEvents
	metrics *Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// NewCampaignService creates a new campaign service. cache and metrics may be nil.
func NewCampaignService(repo repository.CampaignRepository, cache CacheInvalidator, events CampaignEvents, metrics *Metrics, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		repo:    repo,
		cache:   cache,
		events:  events,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// CreateCampaignInput holds the parameters for creating a campaign rule.
type CreateCampaignInput struct {
	Name              string
	Description       string
	Type              domain.CampaignType
	TargetType        domain.TargetType
	TargetIDs         []string
	DiscountValue     decimal.Decimal
	MaxDiscountAmount decimal.NullDecimal
	MinCartTotal      decimal.NullDecimal
	MinQuantity       *int
	BuyQty            int
	PayQty            int
	Priority          int
	IsStackable       bool
	StartDate         time.Time
	EndDate           time.Time
	IsActive          bool
}

// UpdateCampaignInput holds the parameters for a partial update. Nil fields
// are left unchanged.
type UpdateCampaignInput struct {
	Name              *string
	Description       *string
	Type              *domain.CampaignType
	TargetType        *domain.TargetType
	TargetIDs         []string
	DiscountValue     *decimal.Decimal
	MaxDiscountAmount *decimal.NullDecimal
	MinCartTotal      *decimal.NullDecimal
	MinQuantity       **int
	BuyQty            *int
	PayQty            *int
	Priority          *int
	IsStackable       *bool
	StartDate         *time.Time
	EndDate           *time.Time
	IsActive          *bool
}

// CreateCampaign validates and stores a new campaign rule.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*domain.CampaignRule, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("campaign name is required")
	}

	now := s.now()
	rule := &domain.CampaignRule{
		ID:                uuid.New().String(),
		Name:              strings.TrimSpace(input.Name),
		Description:       input.Description,
		Type:              input.Type,
		TargetType:        input.TargetType,
		TargetIDs:         input.TargetIDs,
		DiscountValue:     input.DiscountValue,
		MaxDiscountAmount: input.MaxDiscountAmount,
		MinCartTotal:      input.MinCartTotal,
		MinQuantity:       input.MinQuantity,
		BuyQty:            input.BuyQty,
		PayQty:            input.PayQty,
		Priority:          input.Priority,
		IsStackable:       input.IsStackable,
		StartDate:         input.StartDate,
		EndDate:           input.EndDate,
		IsActive:          input.IsActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if rule.TargetIDs == nil {
		rule.TargetIDs = []string{}
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	s.invalidate(ctx, rule.ID)
	if err := s.events.PublishCampaignCreated(ctx, rule); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.created event",
			slog.String("campaign_id", rule.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", rule.ID),
		slog.String("type", rule.Type.String()),
	)
	return rule, nil
}

// GetCampaign retrieves a campaign rule by its ID.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.CampaignRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return rule, nil
}

// ListCampaigns returns a filtered, paginated list of campaign rules.
func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.CampaignRule, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = pagination.DefaultPerPage
	}
	if filter.PerPage > pagination.MaxPerPage {
		filter.PerPage = pagination.MaxPerPage
	}

	rules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return rules, total, nil
}

// UpdateCampaign applies a partial update and re-validates the whole rule.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, input *UpdateCampaignInput) (*domain.CampaignRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for update: %w", err)
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperrors.InvalidInput("campaign name must not be empty")
		}
		rule.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		rule.Description = *input.Description
	}
	if input.Type != nil {
		rule.Type = *input.Type
	}
	if input.TargetType != nil {
		rule.TargetType = *input.TargetType
	}
	if input.TargetIDs != nil {
		rule.TargetIDs = input.TargetIDs
	}
	if input.DiscountValue != nil {
		rule.DiscountValue = *input.DiscountValue
	}
	if input.MaxDiscountAmount != nil {
		rule.MaxDiscountAmount = *input.MaxDiscountAmount
	}
	if input.MinCartTotal != nil {
		rule.MinCartTotal = *input.MinCartTotal
	}
	if input.MinQuantity != nil {
		rule.MinQuantity = *input.MinQuantity
	}
	if input.BuyQty != nil {
		rule.BuyQty = *input.BuyQty
	}
	if input.PayQty != nil {
		rule.PayQty = *input.PayQty
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.IsStackable != nil {
		rule.IsStackable = *input.IsStackable
	}
	if input.StartDate != nil {
		rule.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		rule.EndDate = *input.EndDate
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return s.save(ctx, rule, "campaign updated")
}

// DeactivateCampaign switches a campaign rule off without deleting it.
func (s *CampaignService) DeactivateCampaign(ctx context.Context, id string) (*domain.CampaignRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for deactivate: %w", err)
	}
	rule.IsActive = false
	return s.save(ctx, rule, "campaign deactivated")
}

func (s *CampaignService) save(ctx context.Context, rule *domain.CampaignRule, msg string) (*domain.CampaignRule, error) {
	rule.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	s.invalidate(ctx, rule.ID)
	if err := s.events.PublishCampaignUpdated(ctx, rule); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.updated event",
			slog.String("campaign_id", rule.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, msg,
		slog.String("campaign_id", rule.ID),
		slog.Bool("is_active", rule.IsActive),
	)
	return rule, nil
}

// invalidate drops the local snapshot right away. Other replicas pick the
// change up from the campaign.updated event or when their snapshot expires.
func (s *CampaignService) invalidate(ctx context.Context, campaignID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.metrics.cacheInvalidationFailed()
		s.logger.WarnContext(ctx, "failed to invalidate rule cache",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
	}
}

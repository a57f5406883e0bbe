package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/pricing"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/slug"
)

// Generated codes are "<STEM>-<SUFFIX>" and must fit the 50 character column.
const (
	couponStemMax   = 40
	couponSuffixLen = 5
)

// CouponEvents publishes coupon notifications.
type CouponEvents interface {
	PublishCouponRedeemed(ctx context.Context, red *domain.CouponRedemption) error
}

// CouponService implements the business logic for coupon administration and
// redemption.
type CouponService struct {
	repo    repository.CouponRepository
	events  CouponEvents
	applier pricing.CouponApplier
	now     func() time.Time
	logger  *slog.Logger
}

// NewCouponService creates a new coupon service.
func NewCouponService(repo repository.CouponRepository, events CouponEvents, logger *slog.Logger) *CouponService {
	return &CouponService{
		repo:   repo,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// CreateCouponInput holds the parameters for creating a coupon. An empty Code
// is generated from Name.
type CreateCouponInput struct {
	Code           string
	Name           string
	Description    string
	IsPercentage   bool
	Value          decimal.Decimal
	ExpirationDate time.Time
	MinOrderAmount decimal.NullDecimal
	UsageLimit     *int
}

// RedeemCouponInput holds the parameters for redeeming a coupon against an order.
type RedeemCouponInput struct {
	UserID      string
	OrderID     string
	OrderAmount decimal.Decimal
}

// CreateCoupon validates and stores a new, active coupon.
func (s *CouponService) CreateCoupon(ctx context.Context, input *CreateCouponInput) (*domain.Coupon, error) {
	code := domain.NormalizeCouponCode(input.Code)
	if code == "" {
		code = slug.CouponCode(input.Name, couponStemMax, couponSuffixLen)
	}

	now := s.now()
	if !input.ExpirationDate.After(now) {
		return nil, apperrors.InvalidInput("expiration date must be in the future")
	}

	coupon := &domain.Coupon{
		ID:             uuid.New().String(),
		Code:           code,
		Description:    input.Description,
		IsPercentage:   input.IsPercentage,
		Value:          input.Value,
		ExpirationDate: input.ExpirationDate,
		MinOrderAmount: input.MinOrderAmount,
		UsageLimit:     input.UsageLimit,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := coupon.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	s.logger.InfoContext(ctx, "coupon created",
		slog.String("coupon_id", coupon.ID),
		slog.String("code", coupon.Code),
	)
	return coupon, nil
}

// GetCoupon retrieves a coupon by its code.
func (s *CouponService) GetCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon, err := s.repo.GetByCode(ctx, domain.NormalizeCouponCode(code))
	if err != nil {
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return coupon, nil
}

// RedeemCoupon records one use of a coupon for an order. The coupon must
// still pass every check a quote would make; a coupon whose limit is used up,
// including by a concurrent redemption, is a conflict.
func (s *CouponService) RedeemCoupon(ctx context.Context, code string, input *RedeemCouponInput) (*domain.CouponRedemption, error) {
	coupon, err := s.repo.GetByCode(ctx, domain.NormalizeCouponCode(code))
	if err != nil {
		return nil, fmt.Errorf("get coupon for redeem: %w", err)
	}
	if !coupon.IsActive {
		return nil, apperrors.Unprocessable(fmt.Sprintf("coupon %s is not active", coupon.Code))
	}

	now := s.now()
	outcome := s.applier.Apply(coupon, coupon.UsageCount, input.OrderAmount, now)
	if !outcome.Applied() {
		return nil, rejectionError(coupon.Code, outcome.Reason)
	}

	red := &domain.CouponRedemption{
		ID:              uuid.New().String(),
		CouponID:        coupon.ID,
		Code:            coupon.Code,
		UserID:          input.UserID,
		OrderID:         input.OrderID,
		DiscountApplied: domain.RoundMoney(outcome.Discount),
		CreatedAt:       now,
	}

	ok, err := s.repo.Redeem(ctx, red)
	if err != nil {
		return nil, fmt.Errorf("redeem coupon: %w", err)
	}
	if !ok {
		return nil, rejectionError(coupon.Code, domain.CouponUsageLimitReached)
	}

	if err := s.events.PublishCouponRedeemed(ctx, red); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish coupon.redeemed event",
			slog.String("coupon_id", coupon.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "coupon redeemed",
		slog.String("coupon_id", coupon.ID),
		slog.String("order_id", red.OrderID),
		slog.String("discount_applied", red.DiscountApplied.String()),
	)
	return red, nil
}

func rejectionError(code string, reason domain.CouponRejectionReason) error {
	msg := fmt.Sprintf("coupon %s rejected: %s", code, reason)
	if reason == domain.CouponUsageLimitReached {
		return apperrors.Conflict(msg)
	}
	return apperrors.Unprocessable(msg)
}

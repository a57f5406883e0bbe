package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/pkg/database"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
)

const couponColumns = `id, code, description, is_percentage, value, expiration_date,
	min_order_amount, usage_limit, usage_count, is_active, created_at, updated_at`

// CouponRepository implements repository.CouponRepository using PostgreSQL.
type CouponRepository struct {
	db database.DBTX
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(db database.DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCode retrieves a coupon by its code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (c *domain.Coupon, err error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	ctx, end := database.TraceQuery(ctx, "GetCouponByCode", query)
	defer func() { end(err) }()

	var coupon domain.Coupon
	err = r.db.QueryRow(ctx, query, code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Description,
		&coupon.IsPercentage,
		&coupon.Value,
		&coupon.ExpirationDate,
		&coupon.MinOrderAmount,
		&coupon.UsageLimit,
		&coupon.UsageCount,
		&coupon.IsActive,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("coupon", code)
		}
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return &coupon, nil
}

// Create inserts a new coupon into the database.
func (r *CouponRepository) Create(ctx context.Context, c *domain.Coupon) (err error) {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := database.TraceQuery(ctx, "CreateCoupon", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Description,
		c.IsPercentage,
		c.Value,
		c.ExpirationDate,
		c.MinOrderAmount,
		c.UsageLimit,
		c.UsageCount,
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("coupon", "code", c.Code)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// Redeem increments the usage count, guarded by the usage limit, and records
// the redemption in the same transaction.
func (r *CouponRepository) Redeem(ctx context.Context, red *domain.CouponRedemption) (redeemed bool, err error) {
	increment := `
		UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND is_active AND (usage_limit IS NULL OR usage_count < usage_limit)`

	insert := `
		INSERT INTO coupon_redemptions (id, coupon_id, code, user_id, order_id, discount_applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "RedeemCoupon", increment)
	defer func() { end(err) }()

	err = database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, increment, red.CouponID)
		if err != nil {
			return fmt.Errorf("increment coupon usage: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, insert,
			red.ID,
			red.CouponID,
			red.Code,
			red.UserID,
			red.OrderID,
			red.DiscountApplied,
			red.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return apperrors.AlreadyExists("coupon redemption", "order_id", red.OrderID)
			}
			return fmt.Errorf("record coupon redemption: %w", err)
		}
		redeemed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return redeemed, nil
}

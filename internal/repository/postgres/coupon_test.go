package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
)

func setupCouponRepo(t *testing.T) (*CouponRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := newMock(t)
	return NewCouponRepository(mock), mock
}

func sampleCoupon() *domain.Coupon {
	limit := 100
	return &domain.Coupon{
		ID:             "coupon-001",
		Code:           "SAVE10",
		Description:    "10 off",
		IsPercentage:   false,
		Value:          decimal.NewFromInt(10),
		ExpirationDate: fixedNow.Add(72 * time.Hour),
		MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
		UsageLimit:     &limit,
		UsageCount:     3,
		IsActive:       true,
		CreatedAt:      fixedNow,
		UpdatedAt:      fixedNow,
	}
}

func couponColumnNames() []string {
	return []string{
		"id", "code", "description", "is_percentage", "value", "expiration_date",
		"min_order_amount", "usage_limit", "usage_count", "is_active", "created_at", "updated_at",
	}
}

func couponRow(c *domain.Coupon) *pgxmock.Rows {
	var minOrder any
	if c.MinOrderAmount.Valid {
		minOrder = c.MinOrderAmount.Decimal.String()
	}
	return pgxmock.NewRows(couponColumnNames()).AddRow(
		c.ID, c.Code, c.Description, c.IsPercentage, c.Value.String(), c.ExpirationDate,
		minOrder, c.UsageLimit, c.UsageCount, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
}

func sampleRedemption() *domain.CouponRedemption {
	return &domain.CouponRedemption{
		ID:              "red-001",
		CouponID:        "coupon-001",
		Code:            "SAVE10",
		UserID:          "user-001",
		OrderID:         "order-001",
		DiscountApplied: decimal.NewFromInt(10),
		CreatedAt:       fixedNow,
	}
}

func redemptionArgs(r *domain.CouponRedemption) []any {
	return []any{r.ID, r.CouponID, r.Code, r.UserID, r.OrderID, r.DiscountApplied, r.CreatedAt}
}

// ---------------------------------------------------------------------------
// GetByCode
// ---------------------------------------------------------------------------

func TestCouponRepository_GetByCode_Success(t *testing.T) {
	repo, mock := setupCouponRepo(t)
	c := sampleCoupon()

	mock.ExpectQuery("SELECT .+ FROM coupons WHERE code").
		WithArgs("SAVE10").
		WillReturnRows(couponRow(c))

	got, err := repo.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "coupon-001", got.ID)
	assert.True(t, got.Value.Equal(decimal.NewFromInt(10)))
	require.True(t, got.MinOrderAmount.Valid)
	assert.True(t, got.MinOrderAmount.Decimal.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, got.UsageLimit)
	assert.Equal(t, 100, *got.UsageLimit)
	assert.Equal(t, 3, got.UsageCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_GetByCode_NullableColumns(t *testing.T) {
	repo, mock := setupCouponRepo(t)
	c := sampleCoupon()
	c.MinOrderAmount = decimal.NullDecimal{}
	c.UsageLimit = nil

	mock.ExpectQuery("SELECT .+ FROM coupons").
		WithArgs("SAVE10").
		WillReturnRows(couponRow(c))

	got, err := repo.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.False(t, got.MinOrderAmount.Valid)
	assert.Nil(t, got.UsageLimit)
}

func TestCouponRepository_GetByCode_NotFound(t *testing.T) {
	repo, mock := setupCouponRepo(t)

	mock.ExpectQuery("SELECT .+ FROM coupons").
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByCode(context.Background(), "NOPE")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCouponRepository_Create(t *testing.T) {
	c := sampleCoupon()
	args := []any{
		c.ID, c.Code, c.Description, c.IsPercentage, c.Value, c.ExpirationDate,
		c.MinOrderAmount, c.UsageLimit, c.UsageCount, c.IsActive, c.CreatedAt, c.UpdatedAt,
	}

	t.Run("success", func(t *testing.T) {
		repo, mock := setupCouponRepo(t)
		mock.ExpectExec("INSERT INTO coupons").
			WithArgs(args...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(context.Background(), c))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate code", func(t *testing.T) {
		repo, mock := setupCouponRepo(t)
		mock.ExpectExec("INSERT INTO coupons").
			WithArgs(args...).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(context.Background(), c)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
		assert.Contains(t, err.Error(), "SAVE10")
	})
}

// ---------------------------------------------------------------------------
// Redeem
// ---------------------------------------------------------------------------

func TestCouponRepository_Redeem_Success(t *testing.T) {
	repo, mock := setupCouponRepo(t)
	red := sampleRedemption()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coupons SET usage_count = usage_count \\+ 1").
		WithArgs(red.CouponID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO coupon_redemptions").
		WithArgs(redemptionArgs(red)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ok, err := repo.Redeem(context.Background(), red)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_Redeem_LimitReached(t *testing.T) {
	repo, mock := setupCouponRepo(t)
	red := sampleRedemption()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coupons").
		WithArgs(red.CouponID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	ok, err := repo.Redeem(context.Background(), red)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_Redeem_DuplicateOrderRollsBack(t *testing.T) {
	repo, mock := setupCouponRepo(t)
	red := sampleRedemption()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coupons").
		WithArgs(red.CouponID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO coupon_redemptions").
		WithArgs(redemptionArgs(red)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	ok, err := repo.Redeem(context.Background(), red)
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_Redeem_BeginFails(t *testing.T) {
	repo, mock := setupCouponRepo(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	ok, err := repo.Redeem(context.Background(), sampleRedemption())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "begin tx")
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/service"
	"github.com/utafrali/ecommerce-pricing/pkg/httputil"
)

// CouponHandler handles HTTP requests for coupon endpoints.
type CouponHandler struct {
	service *service.CouponService
	logger  *slog.Logger
}

// NewCouponHandler creates a new coupon HTTP handler.
func NewCouponHandler(svc *service.CouponService, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateCouponRequest is the JSON request body for creating a coupon.
type CreateCouponRequest struct {
	Code           string           `json:"code" validate:"omitempty,max=50"`
	Name           string           `json:"name" validate:"required_without=Code,max=255"`
	Description    string           `json:"description" validate:"max=2000"`
	IsPercentage   bool             `json:"is_percentage"`
	Value          decimal.Decimal  `json:"value" validate:"dec_gt=0,dec_places=2"`
	ExpirationDate time.Time        `json:"expiration_date" validate:"required"`
	MinOrderAmount *decimal.Decimal `json:"min_order_amount" validate:"omitempty,dec_gte=0,dec_places=2"`
	UsageLimit     *int             `json:"usage_limit" validate:"omitempty,gte=1"`
}

// RedeemCouponRequest is the JSON request body for redeeming a coupon.
type RedeemCouponRequest struct {
	UserID      string          `json:"user_id" validate:"required,max=64"`
	OrderID     string          `json:"order_id" validate:"required,max=64"`
	OrderAmount decimal.Decimal `json:"order_amount" validate:"dec_gt=0,dec_places=2"`
}

// CreateCoupon handles POST /api/v1/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	coupon, err := h.service.CreateCoupon(r.Context(), &service.CreateCouponInput{
		Code:           req.Code,
		Name:           req.Name,
		Description:    req.Description,
		IsPercentage:   req.IsPercentage,
		Value:          req.Value,
		ExpirationDate: req.ExpirationDate.UTC(),
		MinOrderAmount: nullDecimal(req.MinOrderAmount),
		UsageLimit:     req.UsageLimit,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, coupon)
}

// GetCoupon handles GET /api/v1/coupons/{code}
func (h *CouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.service.GetCoupon(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, coupon)
}

// RedeemCoupon handles POST /api/v1/coupons/{code}/redeem
func (h *CouponHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req RedeemCouponRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	redemption, err := h.service.RedeemCoupon(r.Context(), chi.URLParam(r, "code"), &service.RedeemCouponInput{
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, redemption)
}

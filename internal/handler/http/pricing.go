package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/service"
	"github.com/utafrali/ecommerce-pricing/pkg/httputil"
	"github.com/utafrali/ecommerce-pricing/pkg/middleware"
)

// PricingHandler handles HTTP requests for pricing endpoints.
type PricingHandler struct {
	service *service.PricingService
	logger  *slog.Logger
}

// NewPricingHandler creates a new pricing HTTP handler.
func NewPricingHandler(svc *service.PricingService, logger *slog.Logger) *PricingHandler {
	return &PricingHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CartLineRequest is one line of a quote request.
type CartLineRequest struct {
	ID         string          `json:"id" validate:"max=64"`
	ProductID  string          `json:"product_id" validate:"required,max=64"`
	CategoryID string          `json:"category_id" validate:"max=64"`
	UnitPrice  decimal.Decimal `json:"unit_price" validate:"dec_gt=0,dec_places=4"`
	Quantity   int             `json:"quantity" validate:"gt=0,lte=10000"`
}

// QuoteRequest is the JSON request body for pricing a cart. An empty line
// list is left to the engine, which rejects it as an empty cart.
type QuoteRequest struct {
	Lines       []CartLineRequest `json:"lines" validate:"max=200,dive"`
	CouponCode  string            `json:"coupon_code" validate:"max=50"`
	DeliveryFee *decimal.Decimal  `json:"delivery_fee" validate:"omitempty,dec_gte=0,dec_places=2"`
}

// PreviewRequest prices a cart against draft rules and an optional draft coupon.
type PreviewRequest struct {
	QuoteRequest
	Rules  []domain.CampaignRule `json:"rules" validate:"max=100"`
	Coupon *domain.Coupon        `json:"coupon"`
}

func (req *QuoteRequest) input(userID string) service.QuoteInput {
	lines := make([]domain.CartLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = domain.CartLine{
			ID:         l.ID,
			ProductID:  l.ProductID,
			CategoryID: l.CategoryID,
			UnitPrice:  l.UnitPrice,
			Quantity:   l.Quantity,
		}
	}
	return service.QuoteInput{
		Lines:       lines,
		CouponCode:  req.CouponCode,
		DeliveryFee: nullDecimal(req.DeliveryFee),
		UserID:      userID,
	}
}

// --- Handlers ---

// Quote handles POST /api/v1/pricing/quote
func (h *PricingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	input := req.input(r.Header.Get("X-User-ID"))
	quote, err := h.service.Quote(r.Context(), &input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, quote)
}

// Preview handles POST /api/v1/pricing/preview
func (h *PricingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	for i := range req.Rules {
		if req.Rules[i].ID == "" {
			req.Rules[i].ID = fmt.Sprintf("draft-%d", i+1)
		}
	}

	quote, err := h.service.Preview(r.Context(), &service.PreviewInput{
		QuoteInput: req.input(middleware.SubjectFromContext(r.Context())),
		Rules:      req.Rules,
		Coupon:     req.Coupon,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, quote)
}

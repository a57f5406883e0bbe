package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
	"github.com/utafrali/ecommerce-pricing/internal/service"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/httputil"
	"github.com/utafrali/ecommerce-pricing/pkg/pagination"
)

// CampaignHandler handles HTTP requests for campaign rule administration.
type CampaignHandler struct {
	service *service.CampaignService
	logger  *slog.Logger
}

// NewCampaignHandler creates a new campaign HTTP handler.
func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateCampaignRequest is the JSON request body for creating a campaign rule.
type CreateCampaignRequest struct {
	Name              string              `json:"name" validate:"required,max=255"`
	Description       string              `json:"description" validate:"max=2000"`
	Type              domain.CampaignType `json:"type" validate:"required"`
	TargetType        domain.TargetType   `json:"target_type" validate:"required"`
	TargetIDs         []string            `json:"target_ids" validate:"max=500,dive,required,max=64"`
	DiscountValue     decimal.Decimal     `json:"discount_value" validate:"dec_gte=0,dec_places=4"`
	MaxDiscountAmount *decimal.Decimal    `json:"max_discount_amount" validate:"omitempty,dec_gte=0,dec_places=2"`
	MinCartTotal      *decimal.Decimal    `json:"min_cart_total" validate:"omitempty,dec_gte=0,dec_places=2"`
	MinQuantity       *int                `json:"min_quantity" validate:"omitempty,gte=0"`
	BuyQty            int                 `json:"buy_qty" validate:"gte=0"`
	PayQty            int                 `json:"pay_qty" validate:"gte=0"`
	Priority          int                 `json:"priority" validate:"gte=0"`
	IsStackable       bool                `json:"is_stackable"`
	StartDate         time.Time           `json:"start_date" validate:"required"`
	EndDate           time.Time           `json:"end_date" validate:"required"`
	IsActive          *bool               `json:"is_active"`
}

// UpdateCampaignRequest is the JSON request body for a partial update.
// Nullable fields are cleared by sending null.
type UpdateCampaignRequest struct {
	Name              *string                   `json:"name" validate:"omitempty,min=1,max=255"`
	Description       *string                   `json:"description" validate:"omitempty,max=2000"`
	Type              *domain.CampaignType      `json:"type"`
	TargetType        *domain.TargetType        `json:"target_type"`
	TargetIDs         []string                  `json:"target_ids" validate:"omitempty,max=500,dive,required,max=64"`
	DiscountValue     *decimal.Decimal          `json:"discount_value" validate:"omitempty,dec_gte=0,dec_places=4"`
	MaxDiscountAmount Optional[decimal.Decimal] `json:"max_discount_amount"`
	MinCartTotal      Optional[decimal.Decimal] `json:"min_cart_total"`
	MinQuantity       Optional[int]             `json:"min_quantity"`
	BuyQty            *int                      `json:"buy_qty" validate:"omitempty,gte=0"`
	PayQty            *int                      `json:"pay_qty" validate:"omitempty,gte=0"`
	Priority          *int                      `json:"priority" validate:"omitempty,gte=0"`
	IsStackable       *bool                     `json:"is_stackable"`
	StartDate         *time.Time                `json:"start_date"`
	EndDate           *time.Time                `json:"end_date"`
	IsActive          *bool                     `json:"is_active"`
}

// --- Handlers ---

// CreateCampaign handles POST /api/v1/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rule, err := h.service.CreateCampaign(r.Context(), &service.CreateCampaignInput{
		Name:              req.Name,
		Description:       req.Description,
		Type:              req.Type,
		TargetType:        req.TargetType,
		TargetIDs:         req.TargetIDs,
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: nullDecimal(req.MaxDiscountAmount),
		MinCartTotal:      nullDecimal(req.MinCartTotal),
		MinQuantity:       req.MinQuantity,
		BuyQty:            req.BuyQty,
		PayQty:            req.PayQty,
		Priority:          req.Priority,
		IsStackable:       req.IsStackable,
		StartDate:         req.StartDate.UTC(),
		EndDate:           req.EndDate.UTC(),
		IsActive:          isActive,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, rule)
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	filter := repository.CampaignFilter{Params: params}

	q := r.URL.Query()
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("active must be true or false"), h.logger)
			return
		}
		filter.Active = &active
	}
	if v := q.Get("type"); v != "" {
		t, err := domain.ParseCampaignType(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
			return
		}
		filter.Type = &t
	}

	rules, total, err := h.service.ListCampaigns(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(rules, total, params))
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	rule, err := h.service.GetCampaign(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, rule)
}

// UpdateCampaign handles PUT /api/v1/campaigns/{id}
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateCampaignRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	input := &service.UpdateCampaignInput{
		Name:              req.Name,
		Description:       req.Description,
		Type:              req.Type,
		TargetType:        req.TargetType,
		TargetIDs:         req.TargetIDs,
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: optionalNullDecimal(req.MaxDiscountAmount),
		MinCartTotal:      optionalNullDecimal(req.MinCartTotal),
		MinQuantity:       optionalIntPtr(req.MinQuantity),
		BuyQty:            req.BuyQty,
		PayQty:            req.PayQty,
		Priority:          req.Priority,
		IsStackable:       req.IsStackable,
		IsActive:          req.IsActive,
	}
	if req.StartDate != nil {
		start := req.StartDate.UTC()
		input.StartDate = &start
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		input.EndDate = &end
	}

	rule, err := h.service.UpdateCampaign(r.Context(), id.String(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, rule)
}

// DeactivateCampaign handles POST /api/v1/campaigns/{id}/deactivate
func (h *CampaignHandler) DeactivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	rule, err := h.service.DeactivateCampaign(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, rule)
}

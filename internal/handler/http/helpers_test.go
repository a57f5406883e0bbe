package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ecommerce-pricing/internal/auth"
	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/event"
	"github.com/utafrali/ecommerce-pricing/internal/pricing"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
	"github.com/utafrali/ecommerce-pricing/internal/service"
	"github.com/utafrali/ecommerce-pricing/pkg/health"
	"github.com/utafrali/ecommerce-pricing/pkg/httputil"
	pkgkafka "github.com/utafrali/ecommerce-pricing/pkg/kafka"
	"github.com/utafrali/ecommerce-pricing/pkg/logger"
)

const testSecret = "handler-test-secret"

// ============================================================================
// Mock repositories
// ============================================================================

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) GetActiveRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CampaignRule), args.Error(1)
}

func (m *mockCampaignRepository) GetUnexpiredRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CampaignRule), args.Error(1)
}

func (m *mockCampaignRepository) Create(ctx context.Context, rule *domain.CampaignRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.CampaignRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CampaignRule), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.CampaignRule, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.CampaignRule), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) Update(ctx context.Context, rule *domain.CampaignRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

type mockCouponRepository struct {
	mock.Mock
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *mockCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	args := m.Called(ctx, coupon)
	return args.Error(0)
}

func (m *mockCouponRepository) Redeem(ctx context.Context, red *domain.CouponRedemption) (bool, error) {
	args := m.Called(ctx, red)
	return args.Bool(0), args.Error(1)
}

type noopCache struct{}

func (noopCache) Invalidate(context.Context) error { return nil }

// recordingPublisher stands in for the Kafka producer.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) lastEvent() *pkgkafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// ============================================================================
// Test server
// ============================================================================

type testServer struct {
	handler   http.Handler
	campaigns *mockCampaignRepository
	coupons   *mockCouponRepository
	publisher *recordingPublisher
}

func newTestServer(t *testing.T, opts ...func(*RouterDeps)) *testServer {
	t.Helper()

	log := logger.Discard()
	ts := &testServer{
		campaigns: new(mockCampaignRepository),
		coupons:   new(mockCouponRepository),
		publisher: &recordingPublisher{},
	}
	producer := event.NewProducer(ts.publisher, log)
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)

	deps := RouterDeps{
		ServiceName: "pricing-service",
		Pricing: service.NewPricingService(
			ts.campaigns,
			ts.coupons,
			pricing.NewEngine(log),
			nil,
			producer,
			metrics,
			service.PricingOptions{DefaultDeliveryFee: dec("29.90"), Currency: "TRY"},
			log,
		),
		Campaigns: service.NewCampaignService(ts.campaigns, noopCache{}, producer, metrics, log),
		Coupons:   service.NewCouponService(ts.coupons, producer, log),
		Health:    health.NewHandler(),
		Tokens:    auth.NewJWTValidator(testSecret),
		Registry:  reg,
		Gatherer:  reg,
		Origins:   []string{"http://localhost:3000"},
		Logger:    log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	ts.handler = NewRouter(deps)

	t.Cleanup(func() {
		ts.campaigns.AssertExpectations(t)
		ts.coupons.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Sign(testSecret, "admin-1", "admin", time.Hour)
	require.NoError(t, err)
	return token
}

func customerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Sign(testSecret, "user-1", "customer", time.Hour)
	require.NoError(t, err)
	return token
}

type envelope[T any] struct {
	Data  T                       `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	env := decodeEnvelope[json.RawMessage](t, rec)
	require.NotNil(t, env.Error)
	return env.Error
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activeRule(id, pct string) domain.CampaignRule {
	now := time.Now().UTC()
	return domain.CampaignRule{
		ID:            id,
		Name:          id,
		Type:          domain.CampaignTypePercentage,
		TargetType:    domain.TargetTypeAll,
		TargetIDs:     []string{},
		DiscountValue: dec(pct),
		Priority:      1,
		IsStackable:   true,
		StartDate:     now.Add(-24 * time.Hour),
		EndDate:       now.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func quoteBody() map[string]any {
	return map[string]any{
		"lines": []map[string]any{
			{"id": "l1", "product_id": "p1", "category_id": "c1", "unit_price": "50.00", "quantity": 2},
		},
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func decimalNull(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig tunes when the breaker trips.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // trial calls allowed while half-open
	Interval     time.Duration // closed-state window after which counts reset
	Timeout      time.Duration // time spent open before going half-open
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig trips once half of at least five calls in a minute fail.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// BreakerMetrics exports breaker state and rejected calls.
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	rejected *prometheus.CounterVec
}

// NewBreakerMetrics registers the breaker instruments with reg.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	f := promauto.With(reg)
	return &BreakerMetrics{
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_rejected_total",
			Help: "Calls rejected by an open breaker.",
		}, []string{"name"}),
	}
}

func (m *BreakerMetrics) setState(name string, s gobreaker.State) {
	if m == nil {
		return
	}
	v := -1.0
	switch s {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.state.WithLabelValues(name).Set(v)
}

func (m *BreakerMetrics) reject(name string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(name).Inc()
}

// BreakerClient sends requests through a circuit breaker. Transport errors and
// 5xx responses count as failures; 4xx responses and canceled calls do not.
type BreakerClient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	metrics *BreakerMetrics
	logger  *slog.Logger
	name    string
}

// NewBreakerClient wraps client. metrics may be nil.
func NewBreakerClient(client *Client, cfg BreakerConfig, metrics *BreakerMetrics, logger *slog.Logger) *BreakerClient {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.setState(name, to)
		},
	}

	metrics.setState(cfg.Name, gobreaker.StateClosed)
	return &BreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		metrics: metrics,
		logger:  logger,
		name:    cfg.Name,
	}
}

// Do sends req. A 5xx response is consumed and returned as an error.
func (c *BreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, ParseResponseError(resp, c.name)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.reject(c.name)
		return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}
	return resp, err
}

// GetJSON fetches url through the breaker and decodes a 2xx body into dst.
func (c *BreakerClient) GetJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create GET request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp, c.name, dst)
}

// State reports the breaker state.
func (c *BreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

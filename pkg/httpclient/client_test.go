package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 2 * time.Millisecond
	return cfg
}

func TestClient_RetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id":"p1"}`)
	}))
	defer srv.Close()

	var out struct{ ID string }
	require.NoError(t, New(fastConfig()).GetJSON(context.Background(), srv.URL, "catalog", &out))

	assert.Equal(t, "p1", out.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryServerBugs(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ReplaysBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"ids":["p1"]}`))
	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, []string{`{"ids":["p1"]}`, `{"ids":["p1"]}`}, bodies)
}

func TestClient_UnreplayableBodySentOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("x")))
	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RetryWaitMin = time.Hour
	cfg.RetryWaitMax = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	_, err := New(cfg).Do(ctx, req)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_NetworkErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, url, http.NoBody)
	_, err := New(fastConfig()).Do(context.Background(), req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{"envelope not found", 404, `{"error":{"code":"NOT_FOUND","message":"product p9"}}`, apperrors.ErrNotFound, "catalog resource product p9 not found"},
		{"bad request", 400, `{"error":{"code":"INVALID_INPUT","message":"bad id"}}`, apperrors.ErrInvalidInput, "catalog: bad id"},
		{"unprocessable", 422, `{"error":{"message":"nope"}}`, apperrors.ErrUnprocessable, "catalog: nope"},
		{"rate limited", 429, `slow down`, apperrors.ErrRateLimited, "catalog: slow down"},
		{"server error", 502, `upstream gone`, apperrors.ErrServiceUnavail, "catalog returned 502: upstream gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}

			err := ParseResponseError(resp, "catalog")

			assert.ErrorIs(t, err, tt.sentinel)
			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestParseResponseError_UnexpectedStatus(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTeapot, Body: io.NopCloser(strings.NewReader("tea"))}
	assert.ErrorIs(t, ParseResponseError(resp, "catalog"), apperrors.ErrInternal)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(404))
	assert.False(t, IsClientError(503))
	assert.False(t, IsClientError(200))
}

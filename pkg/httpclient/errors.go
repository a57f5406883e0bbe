package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
)

const maxErrorBody = 64 << 10

// downstreamError is the error half of the platform's JSON envelope.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and returns an
// AppError with the matching status. Envelope messages are kept; other
// bodies are quoted verbatim.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.Unavailable(fmt.Sprintf("%s returned %d: read body: %v", service, resp.StatusCode, err))
	}

	message := string(body)
	var env downstreamError
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		message = env.Error.Message
	}
	return mapStatus(resp.StatusCode, service, message)
}

func mapStatus(status int, service, message string) error {
	qualified := service + ": " + message

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(service+" resource", message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnprocessableEntity:
		return apperrors.Unprocessable(qualified)
	case status == http.StatusTooManyRequests:
		return apperrors.TooManyRequests(qualified)
	case status >= 500:
		return apperrors.Unavailable(fmt.Sprintf("%s returned %d: %s", service, status, message))
	default:
		return apperrors.Wrap(apperrors.ErrInternal, fmt.Sprintf("%s returned unexpected status %d: %s", service, status, message))
	}
}

// IsClientError reports whether status is 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

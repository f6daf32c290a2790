// Package response writes the JSON envelopes returned by the HTTP API.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/metrics"
)

// internalCode is reported for errors outside the core taxonomy.
const internalCode = "INTERNAL_ERROR"

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
	Meta  Meta        `json:"meta"`
}

// JSON writes data in a success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, SuccessResponse{Data: data, Meta: meta(w)})
}

// Error writes err in an error envelope. A zero status is derived from
// the error code with StatusFor. Causes of non-core errors are not exposed.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{
		Code:    internalCode,
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	if status == 0 {
		status = StatusFor(err)
	}

	write(w, status, ErrorResponse{Error: detail, Meta: meta(w)})
}

// StatusFor maps an error to an HTTP status code: missing price data is
// 404, an upstream provider failure 502, bad input 400.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNoPriceData),
		errors.Is(err, core.ErrNoPriorPriceData),
		errors.Is(err, core.ErrNoPriceForEvaluationDate),
		errors.Is(err, core.ErrEmptyPriceSeries):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCollectorFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrConfigInvalid),
		errors.Is(err, core.ErrConfigMissing):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// meta picks up the request id set by metrics.LoggingMiddleware.
func meta(w http.ResponseWriter) Meta {
	return Meta{
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get(metrics.RequestIDHeader),
	}
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

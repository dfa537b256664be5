// Package response renders JSON bodies and maps search errors to HTTP
// statuses
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conduit-lang/searchy/internal/orm/convert"
	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
	"github.com/conduit-lang/searchy/internal/orm/search"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HTTPError is an error that already knows its status
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// Error returns the message followed by the cause, if any
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the cause
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// BadRequest wraps err as a 400
func BadRequest(message string, err error) *HTTPError {
	return &HTTPError{StatusCode: http.StatusBadRequest, Code: "bad_request", Message: message, Err: err}
}

// RenderJSON writes v as the JSON body
func RenderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RenderError writes an error body with a code derived from the status
func RenderError(w http.ResponseWriter, status int, err error) {
	RenderErrorWithCode(w, status, err, "")
}

// RenderErrorWithCode writes an error body with an explicit code
func RenderErrorWithCode(w http.ResponseWriter, status int, err error, code string) {
	if code == "" {
		code = errorCodeFromStatus(status)
	}
	RenderJSON(w, status, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
	})
}

// RenderSearchError maps an error from the search pipeline to a status
// and renders it. Compile errors carry their path and fragment as
// details.
func RenderSearchError(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	body := &ErrorResponse{Error: "error", Message: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
	}

	body.Details = Details(err)
	RenderJSON(w, status, body)
}

// Details returns the structured context carried by compile and join
// errors, or nil
func Details(err error) map[string]any {
	var ce *query.CompileError
	if errors.As(err, &ce) {
		return map[string]any{"path": ce.Path, "fragment": ce.Fragment}
	}
	var we *relationships.WideningError
	if errors.As(err, &we) {
		return map[string]any{
			"join":      we.Key,
			"existing":  we.Existing.String(),
			"requested": we.Requested.String(),
		}
	}
	return nil
}

// Classify returns the status and error code for err
func Classify(err error) (int, string) {
	var he *HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode, he.Code
	case errors.Is(err, search.ErrUnknownEntity), errors.Is(err, schema.ErrNotEntity):
		return http.StatusNotFound, "unknown_entity"
	case errors.Is(err, query.ErrUnknownScope):
		return http.StatusNotFound, "unknown_scope"
	case relationships.IsAmbiguousJoinWidening(err):
		return http.StatusConflict, "ambiguous_join"
	case relationships.IsInvalidFieldPath(err):
		return http.StatusBadRequest, "invalid_field_path"
	case query.IsUnsupportedOperator(err):
		return http.StatusBadRequest, "unsupported_operator"
	case errors.Is(err, query.ErrUnknownOperator):
		return http.StatusBadRequest, "unknown_operator"
	case errors.Is(err, search.ErrInvalidValue), errors.Is(err, convert.ErrUnparseableTemporal):
		return http.StatusBadRequest, "invalid_value"
	case errors.Is(err, query.ErrInvalidExpression),
		errors.Is(err, query.ErrInvalidOperand),
		errors.Is(err, query.ErrEmptyInList),
		errors.Is(err, query.ErrEmptyLogical),
		errors.Is(err, query.ErrUnboundParameter):
		return http.StatusBadRequest, "invalid_expression"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "gateway_timeout"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}

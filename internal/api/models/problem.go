package models

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request id, also sent as X-Request-Id.
	TraceID string `json:"traceId"`

	// Code is a machine readable reason, e.g. NO_ROUTE or UNKNOWN_STOP.
	Code string `json:"code,omitempty"`

	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://tramline.dev/problems/"

// Problem types.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeForbidden        = problemBase + "forbidden"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeNoRoute          = problemBase + "no-route"
	ProblemTypeConflict         = problemBase + "conflict"
	ProblemTypePayloadTooLarge  = problemBase + "payload-too-large"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
)

// NewProblem creates a Problem without detail.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail sets the explanation of this occurrence.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithCode sets the machine readable reason.
func (p *Problem) WithCode(code string) *Problem {
	p.Code = code
	return p
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func newDetailed(problemType, title string, status int, traceID, detail string) *Problem {
	return NewProblem(problemType, title, status, traceID).WithDetail(detail)
}

// NewBadRequest creates a 400 problem listing the invalid fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newDetailed(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized creates a 401 problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID, detail)
}

// NewForbidden creates a 403 problem.
func NewForbidden(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeForbidden, "Forbidden", http.StatusForbidden, traceID, detail)
}

// NewTLSRequired creates a 403 problem for a plain HTTP request.
func NewTLSRequired(traceID string) *Problem {
	return newDetailed(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, traceID, "this API is only served over HTTPS")
}

// NewNotFound creates a 404 problem for an unknown resource.
func NewNotFound(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

// NewNoRoute creates a 404 problem for a plan without any itinerary.
func NewNoRoute(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeNoRoute, "No route", http.StatusNotFound, traceID, detail)
}

// NewConflict creates a 409 problem.
func NewConflict(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeConflict, "Conflict", http.StatusConflict, traceID, detail)
}

// NewPayloadTooLarge creates a 413 problem for a body above limit bytes.
func NewPayloadTooLarge(traceID string, limit int64) *Problem {
	return newDetailed(ProblemTypePayloadTooLarge, "Payload too large", http.StatusRequestEntityTooLarge, traceID,
		fmt.Sprintf("request body exceeds %d bytes", limit))
}

// NewUnsupportedMediaType creates a 415 problem.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType, traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID, detail)
}

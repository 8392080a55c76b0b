// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics. Domain codes
// name the newsletter rule that rejected the request.
//
// Service errors are translated in one place (serviceError) from the service
// error categories:
//
//	NotFound            -> 404 not_found
//	InvalidTransition   -> 409 invalid_transition (+ allowed_transitions)
//	PreconditionFailed  -> 409 precondition_failed
//	Validation          -> 400 bad_request
//	Transport           -> 502 transport_failed
//	Persistence / other -> 500 internal_error
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_transition",
//	  "message": "cannot move issue from \"generating\" to \"approved\" (allowed: draft, failed)",
//	  "allowed_transitions": ["draft", "failed"]
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidTransition  = "invalid_transition"
	ErrCodePreconditionFailed = "precondition_failed"
	ErrCodeTransportFailed    = "transport_failed"
)

// serviceError writes the envelope matching err's category. Server-side
// failures carry a generic message; the cause is logged by fail.
func serviceError(c *gin.Context, err error) {
	var te *domain.TransitionError
	switch {
	case errors.As(err, &te):
		allowed := make([]string, 0, len(te.Allowed))
		for _, s := range te.Allowed {
			allowed = append(allowed, string(s))
		}
		c.Set(ctxKeyAllowed, allowed)
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, te.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrPreconditionFailed):
		fail(c, http.StatusConflict, ErrCodePreconditionFailed, err.Error())
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrTransport):
		failCause(c, http.StatusBadGateway, ErrCodeTransportFailed, "email transport failed", err)
	default:
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
	}
}

// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case. Generic codes mirror HTTP status semantics;
// domain codes are reserved for failures the status alone cannot convey
// (an unreachable model, a missing API key).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "Demande introuvable"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAIFailed      = "ai_failed"
	ErrCodeMissingAPIKey = "missing_api_key"
	ErrCodePDFFailed     = "pdf_failed"
)

// Messages shown to the portals.
const (
	msgDemandeNotFound      = "Demande introuvable"
	msgNotificationNotFound = "Notification introuvable"
	msgInvalidCredentials   = "Identifiants invalides"
	msgMissingAPIKey        = "Missing GEMINI_API_KEY"
	msgInvalidBody          = "invalid JSON body"
)

// failErr maps a service error onto the envelope. Unknown errors are 500s
// carrying fallbackCode.
func failErr(c *gin.Context, err error, fallbackCode string) {
	switch {
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrDemandeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgDemandeNotFound)
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgNotificationNotFound)
	case errors.Is(err, services.ErrAccountNotFound), errors.Is(err, services.ErrRecipientNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, msgInvalidCredentials)
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrMissingAPIKey):
		fail(c, http.StatusInternalServerError, ErrCodeMissingAPIKey, msgMissingAPIKey)
	case errors.Is(err, services.ErrAIFailed):
		fail(c, http.StatusInternalServerError, ErrCodeAIFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

// Package services defines the business logic for demandes, notifications,
// direct messages, accounts, and the AI assistant. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"

	"github.com/zalagh/plancher-backend/internal/ai"
)

// Lookup errors.
var (
	// ErrDemandeNotFound indicates that the requested demande does not exist.
	ErrDemandeNotFound = errors.New("demande not found")

	// ErrNotificationNotFound indicates that the notification does not exist
	// or, on the employee side, does not belong to the caller.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrAccountNotFound is returned by the /me endpoints when the token
	// refers to a deleted account.
	ErrAccountNotFound = errors.New("account not found")
)

// Authentication and account errors.
var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords, and
	// employees without a password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned when an employee email is already in use.
	ErrEmailTaken = errors.New("email already in use")
)

// Assistant errors.
var (
	// ErrMissingAPIKey is returned by every assistant call when no Gemini
	// key is configured.
	ErrMissingAPIKey = ai.ErrMissingAPIKey

	// ErrAIFailed wraps upstream model failures.
	ErrAIFailed = errors.New("assistant request failed")
)

// ValidationError reports a rejected input. Handlers map it to 400 and use
// Error() as the message.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Messaging errors.
var (
	// ErrRecipientNotFound is returned when a direct message names an
	// account that does not exist.
	ErrRecipientNotFound = errors.New("recipient not found")
)

package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error codes used across the service.
const (
	CodeDuplicateOpenTicket = "DUPLICATE_OPEN_TICKET"
	CodeNotATicketChannel   = "NOT_A_TICKET_CHANNEL"
	CodeChannelGone         = "CHANNEL_GONE"
	CodeDeliveryFailed      = "DELIVERY_FAILED"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeConflict            = "CONFLICT"
	CodeInternalError       = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewDuplicateOpenTicket reports that a user already has an open ticket.
func NewDuplicateOpenTicket(userID string) error {
	return NewDomainError(CodeDuplicateOpenTicket, "user already has an open ticket",
		http.StatusConflict, map[string]any{"user_id": userID})
}

// NewNotATicketChannel reports a ticket-scoped operation invoked outside an
// open-ticket channel.
func NewNotATicketChannel(channelID string) error {
	return NewDomainError(CodeNotATicketChannel, "channel is not an open ticket",
		http.StatusNotFound, map[string]any{"channel_id": channelID})
}

// NewChannelGone reports that the channel backing a ticket no longer exists.
func NewChannelGone(channelID string) error {
	return NewDomainError(CodeChannelGone, "ticket channel no longer exists",
		http.StatusGone, map[string]any{"channel_id": channelID})
}

// NewDeliveryFailed wraps a failed direct-message delivery.
func NewDeliveryFailed(recipientID string, err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    "could not deliver direct message",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"recipient_id": recipientID},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &DomainError{
			Code:       CodeDuplicateOpenTicket,
			Message:    "user already has an open ticket",
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	}
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

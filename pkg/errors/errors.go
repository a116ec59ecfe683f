package errors

import (
	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons
const (
	ReasonBadRequest         = "BAD_REQUEST"
	ReasonInvalidQuery       = "INVALID_QUERY"
	ReasonUnauthorized       = "UNAUTHORIZED"
	ReasonInvalidCredentials = "INVALID_CREDENTIALS"
	ReasonTokenExpired       = "TOKEN_EXPIRED"
	ReasonTokenRevoked       = "TOKEN_REVOKED"
	ReasonForbidden          = "FORBIDDEN"
	ReasonUserInactive       = "USER_INACTIVE"
	ReasonNotFound           = "NOT_FOUND"
	ReasonOrgNotFound        = "ORG_NOT_FOUND"
	ReasonTooManyRequests    = "TOO_MANY_REQUESTS"
	ReasonInternal           = "INTERNAL_SERVER_ERROR"
)

// Common errors
var (
	ErrUnauthorized        = errors.Unauthorized(ReasonUnauthorized, "Unauthorized")
	ErrForbidden           = errors.Forbidden(ReasonForbidden, "Forbidden")
	ErrTooManyRequests     = errors.New(429, ReasonTooManyRequests, "Too many requests")
	ErrInternalServerError = errors.InternalServer(ReasonInternal, "Internal server error")
)

// NewBadRequest creates a new bad request error.
func NewBadRequest(reason, message string) *errors.Error {
	return errors.BadRequest(reason, message)
}

// NewUnauthorized creates a new unauthorized error.
func NewUnauthorized(reason, message string) *errors.Error {
	return errors.Unauthorized(reason, message)
}

// NewForbidden creates a new forbidden error.
func NewForbidden(reason, message string) *errors.Error {
	return errors.Forbidden(reason, message)
}

// NewNotFound creates a new not found error.
func NewNotFound(reason, message string) *errors.Error {
	return errors.NotFound(reason, message)
}

// NewInternalServerError creates a new internal server error.
func NewInternalServerError(reason, message string) *errors.Error {
	return errors.InternalServer(reason, message)
}

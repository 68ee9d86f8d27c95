package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized indicates the caller lacks the role, issuer or admin privilege
	// the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates a referenced request or credential does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStatus indicates the operation is not valid for the current state
	// of the request.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNotApproved is returned when funds are released for a request that has not
	// collected every approval.
	ErrNotApproved = fmt.Errorf("%w: request not approved", ErrInvalidStatus)

	// ErrInvalidInput is the parent of every malformed-input error.
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrInvalidVendor      = fmt.Errorf("%w: invalid vendor", ErrInvalidInput)
	ErrInvalidDuration    = fmt.Errorf("%w: validity duration must be positive", ErrInvalidInput)
	ErrInvalidRole        = fmt.Errorf("%w: unknown role", ErrInvalidInput)
	ErrInvalidRequestType = fmt.Errorf("%w: unknown request type", ErrInvalidInput)
	ErrInvalidRecipient   = fmt.Errorf("%w: invalid recipient", ErrInvalidInput)

	// ErrInsufficientBalance occurs when an account lacks the balance to cover a posting.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance occurs when a spender's allowance is below the amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrOverflow is returned instead of wrapping 256-bit arithmetic.
	ErrOverflow = errors.New("arithmetic overflow")
)

// HTTPStatus maps a domain error to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientAllowance), errors.Is(err, ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

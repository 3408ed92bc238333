/**
 * @description
 * Business-rule errors raised by the application service. Validation failures
 * carry a message for the API envelope; the remaining errors are sentinels the
 * handlers translate with errors.Is.
 */

package app

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrBalanceConflict     = errors.New("balance was modified concurrently, retry the request")
	ErrInvalidStatus       = errors.New("payout is not in a reinitiable status")
	ErrUnknownIPNStatus    = errors.New("unsupported status in IPN callback")
)

// ValidationError signals malformed or missing input. The message is safe to
// surface to API clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(message string) error {
	return &ValidationError{Message: message}
}

// RateLimitError signals that a merchant exceeded its creation rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

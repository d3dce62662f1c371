// Package coreerrors defines the closed error-kind taxonomy from
// spec.md §7: Transient, Validation, Operational, and Fatal. Each kind
// is a sentinel that call sites wrap with fmt.Errorf("...: %w", err) so
// errors.Is still resolves to the kind after context is added.
package coreerrors

import "errors"

// Transient errors: retry per §4, downgrade to a Failed event on
// exhaustion, abort only the current trigger.
var (
	ErrTransientExchange = errors.New("transient exchange error")
	ErrTransientAdvisor  = errors.New("transient advisor error")
	ErrNotifierOverflow  = errors.New("notifier queue overflow")
)

// Validation errors: no retry, no execution, event emitted.
var (
	ErrAdvisorRejected    = errors.New("advisor reply rejected")
	ErrSignalInadmissible = errors.New("signal inadmissible")
	ErrInvariantViolation = errors.New("invariant violation")
)

// Operational errors: abort remaining plan actions, emit event, no
// self-correcting trade.
var (
	ErrInsufficientMargin    = errors.New("insufficient margin")
	ErrSymbolFilterRejected  = errors.New("symbol filter rejected")
	ErrCloseTimeout          = errors.New("close position timeout")
	ErrPositionDesyncAfterOpen = errors.New("position desync after open")
)

// Fatal errors: stop scheduler, flush notifier, exit(2).
var (
	ErrExchangeAuth = errors.New("exchange authentication failure")
	ErrCorruptConfig = errors.New("corrupt configuration")
)

// MarketDataUnavailable is raised by the market data adapter on an
// empty/short OHLCV window.
var ErrMarketDataUnavailable = errors.New("market data unavailable")

// IsTransient reports whether err (or any error it wraps) is one of the
// retryable transient kinds.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientExchange) || errors.Is(err, ErrTransientAdvisor) || errors.Is(err, ErrNotifierOverflow)
}

// IsValidation reports whether err (or any error it wraps) is a
// validation-kind error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrAdvisorRejected) || errors.Is(err, ErrSignalInadmissible) || errors.Is(err, ErrInvariantViolation)
}

// IsOperational reports whether err (or any error it wraps) is an
// operational-kind error.
func IsOperational(err error) bool {
	return errors.Is(err, ErrInsufficientMargin) || errors.Is(err, ErrSymbolFilterRejected) ||
		errors.Is(err, ErrCloseTimeout) || errors.Is(err, ErrPositionDesyncAfterOpen)
}

// IsFatal reports whether err (or any error it wraps) should terminate
// the process with exit code 2.
func IsFatal(err error) bool {
	return errors.Is(err, ErrExchangeAuth) || errors.Is(err, ErrCorruptConfig)
}

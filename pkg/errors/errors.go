package apperrors

import "errors"

// Sentinel errors checked with errors.Is across the monitor, strategy and
// venue packages.
var (
	ErrDuplicateTaskID       = errors.New("duplicate task id")
	ErrCapacityExceeded      = errors.New("active task capacity exceeded")
	ErrUnsupportedSpotSymbol = errors.New("unsupported spot symbol")
	ErrTaskNotFound          = errors.New("monitor task not found")
	ErrInvalidTriggerCombo   = errors.New("invalid trigger configuration")
	ErrVenueRejected         = errors.New("venue rejected order")
	ErrStrategyNotRunning    = errors.New("strategy is not running")
	ErrLevelTerminal         = errors.New("level is already in a terminal state")
	ErrStrategyNotFound      = errors.New("strategy not found")
	ErrLevelNotFound         = errors.New("level not found")

	// Venue-facing errors, kept for the out-of-scope real exchange
	// connector to return through VenueClient.
	ErrNetwork           = errors.New("network error")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

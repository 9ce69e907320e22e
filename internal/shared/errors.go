package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrMissingAPIKey = fmt.Errorf("missing catalog api key")

	// Import errors
	ErrImportInProgress = fmt.Errorf("an import is already running for this user")
	ErrLockLost         = fmt.Errorf("import lock expired or taken over")
	ErrUnknownPlatform  = fmt.Errorf("unknown platform")
	ErrJobNotFound      = fmt.Errorf("import job not found")
	ErrBudgetExceeded   = fmt.Errorf("import budget exceeded")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Store errors
	ErrUserNotFound   = fmt.Errorf("user not found")
	ErrInvalidMode    = fmt.Errorf("invalid data source mode")
	ErrPersistFailed  = fmt.Errorf("failed to persist plays")
	ErrAckTimeout     = fmt.Errorf("aggregate recalculation not acknowledged")
	ErrCatalogFailure = fmt.Errorf("catalog lookup failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Rule store failures
	ErrMissingStore  = errors.New("rule store missing")
	ErrParseFailure  = errors.New("rule store unparsable")
	ErrBackupFailed  = errors.New("rule store backup failed")
	ErrPersistFailed = errors.New("rule store save failed")
)

// IsFatal reports whether err is one of the store conditions that must stop
// a batch run with a non-zero status.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingStore) || errors.Is(err, ErrParseFailure)
}

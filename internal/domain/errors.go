package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrUnknownSymbol        = errors.New("unknown_symbol")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientShares   = errors.New("insufficient_shares")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrStorageUnavailable   = errors.New("storage_unavailable")
)

// ValidationError represents a request validation failure. It matches
// ErrInvalidRequest under errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

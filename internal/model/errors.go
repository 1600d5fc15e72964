package model

import "errors"

// Error kinds shared by the stores, the ledger services and the request layer.
// Wrap with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("caller does not own the account")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrAccountInactive     = errors.New("account is not active")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	// ErrDuplicate is returned by stores when a unique key (account number,
	// transaction id) is already taken. Services retry it with a fresh id.
	ErrDuplicate = errors.New("duplicate key")
)

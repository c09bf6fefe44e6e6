package market

import "errors"

// Failure taxonomy. The HTTP layer maps these onto status codes; callers
// never see raw internal error text for unexpected failures.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrSellerNotFound   = errors.New("seller not found")
	ErrResponseNotFound = errors.New("response not found or expired")
	ErrSellerMismatch   = errors.New("response does not belong to this seller")
	ErrDecrypt          = errors.New("decryption failed")
	ErrEncrypt          = errors.New("encryption failed")
	ErrHandler          = errors.New("seller handler failed")
)

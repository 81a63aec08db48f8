package domain

import "errors"

var (
	ErrInvalidAsset    = errors.New("invalid asset")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidExpiry   = errors.New("invalid expiry")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidKind     = errors.New("invalid order kind")
	ErrStalePrice      = errors.New("stale price")
	ErrNotFound        = errors.New("order not found")
	ErrUnauthorized    = errors.New("caller is not the maker")
	ErrInactive        = errors.New("order is inactive")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrExpired         = errors.New("order expired")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrNoMatch         = errors.New("no matching orders")
	ErrReentrant       = errors.New("reentrant call")
)

// Escrow adapter failures. They reach callers wrapped under ErrTransferFailed.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Kind returns a short machine-readable name for err, or "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidAsset, "InvalidAsset"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidExpiry, "InvalidExpiry"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrInvalidSide, "InvalidSide"},
	{ErrInvalidKind, "InvalidKind"},
	{ErrStalePrice, "StalePrice"},
	{ErrNotFound, "NotFound"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInactive, "Inactive"},
	{ErrAlreadyTerminal, "AlreadyTerminal"},
	{ErrExpired, "Expired"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrNoMatch, "NoMatch"},
	{ErrReentrant, "Reentrant"},
}

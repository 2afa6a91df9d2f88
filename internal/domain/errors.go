package domain

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPositionClosing  = errors.New("position has an exit in flight")
	ErrSlippageExceeded = errors.New("slippage ceiling exceeded")
	ErrNoHealthyNodes   = errors.New("no healthy rpc nodes")
	ErrEntriesDisabled  = errors.New("new entries disabled")
	ErrInvalidAddress   = errors.New("invalid address")
)

// ValidateAddress checks that s is a base58-encoded 32-byte key, the format
// of both token mints and wallet addresses.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: decoded length %d, want 32", ErrInvalidAddress, len(raw))
	}
	return nil
}

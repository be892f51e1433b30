package core

import "errors"

var (
	ErrUnknownAccount  = errors.New("node: account not registered")
	ErrUnknownRegistry = errors.New("node: registry not found")
	ErrUnknownEscrow   = errors.New("node: escrow not found")
	ErrInvalidRequest  = errors.New("node: invalid request")
)

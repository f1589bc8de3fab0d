package engine

import "errors"

// Sentinel error kinds mirroring spec.md §7's table exactly.
var (
	ErrWouldBlock      = errors.New("engine: would block")
	ErrConnectPending  = errors.New("engine: connect pending")
	ErrConnectFailed   = errors.New("engine: connect failed")
	ErrAcceptTransient = errors.New("engine: accept transient")
	ErrAcceptFatal     = errors.New("engine: accept fatal")
	ErrTLSFailed       = errors.New("engine: tls failed")
	ErrTableFull       = errors.New("engine: table full")
	ErrProtocolBroke   = errors.New("engine: protocol broke")
	ErrBudgetExhausted = errors.New("engine: budget exhausted")
)

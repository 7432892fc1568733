package simulation

import "errors"

// Command errors. Both are recoverable: the simulation state is untouched when
// either is returned.
var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrParse         = errors.New("malformed command")
)

// Engine errors
var (
	ErrEngineStopped = errors.New("engine is stopped")
	ErrEngineBusy    = errors.New("engine request queue is full")
)

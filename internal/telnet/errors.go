package telnet

import "errors"

var (
	ErrUnregistered    = errors.New("option not registered")
	ErrOptionInactive  = errors.New("option not active")
	ErrInvalidCommand  = errors.New("not a command byte")
	ErrFilterInstalled = errors.New("filter already installed")
	ErrStreamCorrupt   = errors.New("corrupt stream")
	ErrClosed          = errors.New("session closed")
)

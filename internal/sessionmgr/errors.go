package sessionmgr

import "errors"

var (
	ErrNotFound      = errors.New("sessionmgr: session not found")
	ErrAlreadyExists = errors.New("sessionmgr: session already exists")
	ErrTerminal      = errors.New("sessionmgr: session already in a terminal state")
)

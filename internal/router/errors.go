package router

import "errors"

var (
	// ErrAlreadyActive is returned by Activate on an active router.
	ErrAlreadyActive = errors.New("router already active")
	// ErrNotActive is returned by Deactivate on an inactive router.
	ErrNotActive = errors.New("router not active")
)

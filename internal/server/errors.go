package server

import "errors"

var (
	// ErrNotFound reports an unknown server id. Registry-level; never retried.
	ErrNotFound = errors.New("server not found")

	// ErrInvalidTransition reports a control call that is not legal in the
	// instance's current state (e.g. Start on a running server).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoProcess reports a command sent while no live stdin channel exists.
	ErrNoProcess = errors.New("no running process")

	// ErrSpawnFailed wraps OS-level start failures (missing interpreter,
	// permission denied). The instance is left crashed.
	ErrSpawnFailed = errors.New("failed to spawn process")
)

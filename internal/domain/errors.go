package domain

import "errors"

var (
	// ErrNotFound is returned by mutating operations addressing an absent uid.
	// Read paths return a nil entity instead.
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMissingDependency = errors.New("missing dependency")
	ErrHasDependents     = errors.New("has dependents")
	ErrIO                = errors.New("io failure")
	ErrRemote            = errors.New("remote failure")
	ErrWorkUnit          = errors.New("work unit failure")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotPermitted      = errors.New("not permitted on this server")
	ErrNotTrained        = errors.New("classifier is not trained")
	ErrDisabled          = errors.New("classifier is disabled")
)

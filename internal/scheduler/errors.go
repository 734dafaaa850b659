package scheduler

import "errors"

var (
	// ErrDuplicateIdentity is returned when two entities share type and tag.
	ErrDuplicateIdentity = errors.New("scheduler: duplicate entity identity")

	// ErrDependencyCycle is returned when an entity's dependencies lead back
	// to itself.
	ErrDependencyCycle = errors.New("scheduler: dependency cycle")

	// ErrAlreadyStarted is returned when adding entities after Start.
	ErrAlreadyStarted = errors.New("scheduler: already started")
)

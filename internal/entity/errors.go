package entity

import "errors"

// Domain-specific errors for entity operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInitializeFailed is returned when an entity's Initialize failed; the
	// entity is terminally Failed.
	ErrInitializeFailed = errors.New("entity: initialize failed")

	// ErrNoValue is returned when reading a sensor that was never written.
	ErrNoValue = errors.New("entity: no value")

	// ErrUnknownKey is returned when accessing a key that was never registered.
	ErrUnknownKey = errors.New("entity: unknown key")

	// ErrDuplicateKey is returned when registering a key twice.
	ErrDuplicateKey = errors.New("entity: duplicate key")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("entity: invalid key")

	// ErrRegistrationClosed is returned when registering data outside Initialize.
	ErrRegistrationClosed = errors.New("entity: registration only allowed during initialize")

	// ErrLifecycleBusy is returned when a lifecycle call gave up waiting for
	// another one on the same entity.
	ErrLifecycleBusy = errors.New("entity: lifecycle call in progress")

	// ErrCommandFailed wraps a command callback failure or panic.
	ErrCommandFailed = errors.New("entity: command failed")
)

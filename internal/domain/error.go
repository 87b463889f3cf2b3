package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Turn failure classes. Use errors.Is against these; the typed errors below unwrap to them.
	ErrUsage   = errors.New("usage error")
	ErrStorage = errors.New("storage error")
	ErrService = errors.New("service error")
)

// UsageError reports a command that is missing a required argument.
type UsageError struct {
	Command string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("/%s: missing required argument", e.Command)
}

func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// StorageError wraps a durable read or write failure.
type StorageError struct {
	Op  string // "load" | "save"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ServiceError wraps a failure of an external collaborator (completion, speech, detection).
type ServiceError struct {
	Collaborator string
	Err          error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Collaborator, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrService }

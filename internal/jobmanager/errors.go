package jobmanager

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

// InvalidStateError is returned when attempting an invalid Job state
// transition.
type InvalidStateError struct {
	from JobState
	to   JobState
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.from, e.to)
}

func NewInvalidStateError(from, to JobState) InvalidStateError {
	return InvalidStateError{from, to}
}

// ErrorKind classifies failures that happen before a driver process is
// spawned.
type ErrorKind int

const (
	// KindConfiguration indicates the requested build can't be expressed as
	// driver flags, e.g. an unsupported verb.
	KindConfiguration ErrorKind = iota + 1

	// KindSpawn indicates the build directory or the driver process couldn't
	// be set up.
	KindSpawn

	// KindCompatibility indicates the selected runtime can't build the
	// project's format.
	KindCompatibility
)

var errorKinds = map[ErrorKind]string{
	KindConfiguration: "configuration",
	KindSpawn:         "spawn",
	KindCompatibility: "compatibility",
}

func (k ErrorKind) String() string {
	if s, ok := errorKinds[k]; ok {
		return s
	}

	return "unknown"
}

// Error is returned by Controller.Run. Hint is a human-readable remediation
// and may be empty.
type Error struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}

	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

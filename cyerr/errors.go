// Package cyerr defines the engine's behavioral error taxonomy as a leaf
// package so the cypher, translate, exec, and store packages can all
// raise them without import cycles back through the repo root.
package cyerr

import "fmt"

// NameError is raised for an unknown variable or undefined parameter
// referenced in SET/DELETE/RETURN/property expressions.
type NameError struct{ Msg string }

func (e *NameError) Error() string { return e.Msg }

// TypeError is raised for an argument-kind mismatch: labels() on an edge,
// type() on a node, a non-object parameter where a property map is
// required.
type TypeError struct{ Msg string }

func (e *TypeError) Error() string { return e.Msg }

// UnsupportedFeatureError is raised for MERGE with multiple patterns,
// CALL to an unknown procedure, or any expression kind this engine's
// documented subset does not cover.
type UnsupportedFeatureError struct{ Msg string }

func (e *UnsupportedFeatureError) Error() string { return e.Msg }

// ConstraintViolationError is raised for a non-DETACH delete of a node
// that still has incident edges.
type ConstraintViolationError struct{ Msg string }

func (e *ConstraintViolationError) Error() string { return e.Msg }

// StorageError wraps an error propagated verbatim from the storage
// handle.
type StorageError struct {
	Msg string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *StorageError) Unwrap() error { return e.Err }

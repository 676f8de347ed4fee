package domain

import (
	"errors"
	"fmt"
)

// The migration distinguishes record-scoped failures, which the driver logs
// and steps past, from fatal failures, which abort the run. Record-scoped
// errors are configuration or input problems a human fixes before re-running;
// none of them is retried automatically.

// UnmappedStatusError is returned when a source status has no entry in the
// state table for the record's category.
type UnmappedStatusError struct {
	Category Category
	Status   string
}

func (e *UnmappedStatusError) Error() string {
	return fmt.Sprintf("no %s state mapping for status %q", e.Category, e.Status)
}

// UnmappedPriorityError is returned when a source priority name has no entry
// in the priority table.
type UnmappedPriorityError struct {
	Priority string
}

func (e *UnmappedPriorityError) Error() string {
	return fmt.Sprintf("no priority mapping for %q", e.Priority)
}

// UnsupportedTypeError is returned when a source record type has no category.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported source record type %q", e.Type)
}

// ParentNotMigratedError is returned when a record's parent has no checkpoint
// entry. Creation-order processing guarantees parents precede children, so
// hitting this means the input order was violated.
type ParentNotMigratedError struct {
	SourceID string
	ParentID string
}

func (e *ParentNotMigratedError) Error() string {
	return fmt.Sprintf("parent %s of %s has not been migrated", e.ParentID, e.SourceID)
}

// TransferError wraps a network or API failure from either collaborator.
type TransferError struct {
	Op  string // e.g. "create record", "upload attachment"
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// FatalError marks a failure that must abort the whole run. The only fatal
// class is the checkpoint store itself: continuing without durable
// checkpoints would break the exactly-once invariant.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as fatal. Returns nil for a nil err.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err must abort the run rather than the record.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

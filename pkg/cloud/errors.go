package cloud

import (
	"errors"
	"fmt"
)

// Class categorizes control-plane failures.
type Class int

const (
	// ClassTransient covers network blips and rate limits. Retried.
	ClassTransient Class = iota + 1
	// ClassConflict is "already exists" or "already granted".
	ClassConflict
	// ClassNotFound means the addressed object does not exist.
	ClassNotFound
	// ClassRejected is a definitive refusal: bad name, quota, permission.
	ClassRejected
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassConflict:
		return "conflict"
	case ClassNotFound:
		return "not-found"
	case ClassRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is a classified control-plane error.
type Error struct {
	Class Class
	Op    string
	Ref   Ref
	Err   error
}

func (e *Error) Error() string {
	if e.Ref.Name != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Ref.Address(), e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err. A nil err returns nil.
func Wrap(class Class, op string, ref Ref, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Op: op, Ref: ref, Err: err}
}

// Transient wraps err as retryable.
func Transient(op string, ref Ref, err error) error { return Wrap(ClassTransient, op, ref, err) }

// Rejected wraps err as a definitive rejection.
func Rejected(op string, ref Ref, err error) error { return Wrap(ClassRejected, op, ref, err) }

// NotFound wraps err as a missing object.
func NotFound(op string, ref Ref, err error) error { return Wrap(ClassNotFound, op, ref, err) }

// ClassOf returns the class of the first *Error in err's chain, or 0.
func ClassOf(err error) Class {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}
	return 0
}

func IsTransient(err error) bool { return ClassOf(err) == ClassTransient }
func IsConflict(err error) bool  { return ClassOf(err) == ClassConflict }
func IsNotFound(err error) bool  { return ClassOf(err) == ClassNotFound }
func IsRejected(err error) bool  { return ClassOf(err) == ClassRejected }

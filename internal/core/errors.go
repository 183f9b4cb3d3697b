package core

import (
	"errors"
	"fmt"
)

// Error taxonomy of the ledger mutation boundary. Balance and settlement
// derivation never fail on a group that passed mutation validation, so
// these are the only errors the engine produces.
var (
	// ErrValidation marks malformed or out-of-invariant mutation input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an operation targeting an absent member or expense.
	ErrNotFound = errors.New("not found")
	// ErrInUse marks a member removal blocked by an existing expense reference.
	ErrInUse = errors.New("in use")
)

// ValidationError reports which field of a mutation violated an invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an id that does not exist within the group.
type NotFoundError struct {
	Kind string // "group", "member" or "expense"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InUseError reports a member removal rejected because an expense still
// references the member as payer or participant.
type InUseError struct {
	MemberID  string
	ExpenseID string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("member %s is referenced by expense %s", e.MemberID, e.ExpenseID)
}

func (e *InUseError) Unwrap() error { return ErrInUse }

package account

import (
	"errors"
	"fmt"
)

// Phase identifies which lookup of an aggregation failed.
type Phase string

const (
	PhaseAccount Phase = "account"
	PhaseManager Phase = "manager"
	PhaseGroups  Phase = "groups"
)

// LookupError records a failed directory lookup during aggregation. Only a
// PhaseAccount failure is fatal to the aggregation; the others are collected
// on the record.
type LookupError struct {
	Phase    Phase
	Identity string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup for %q failed: %v", e.Phase, e.Identity, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Transition failure kinds. Match with errors.Is.
var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrMutationFailed     = errors.New("account state mutation failed")
	ErrVerificationFailed = errors.New("account state did not converge")
)

// TransitionError aborts a lifecycle transition. Kind is one of the Err*
// sentinels above; Err is the underlying cause, if any.
type TransitionError struct {
	Kind     error
	Identity string
	Target   State
	Err      error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Target.Verb(), e.Identity, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == e.Kind
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

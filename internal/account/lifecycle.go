package account

import (
	"context"
	"errors"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

// State is the target of a lifecycle transition.
type State int

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Verb names the transition that reaches s.
func (s State) Verb() string {
	if s == Enabled {
		return "enable"
	}
	return "disable"
}

// StateOf maps an enabled flag to its State.
func StateOf(enabled bool) State {
	if enabled {
		return Enabled
	}
	return Disabled
}

// Subject is the account a transition applies to: either a bare identity,
// resolved by aggregation, or a record returned by an earlier aggregation.
type Subject struct {
	identity string
	handle   *Record
}

// ByIdentity targets the account named by identity.
func ByIdentity(identity string) Subject {
	return Subject{identity: identity}
}

// ByHandle targets an already-resolved account.
func ByHandle(record *Record) Subject {
	return Subject{handle: record}
}

// Controller applies enable/disable transitions and verifies the outcome.
type Controller struct {
	client     directory.Client
	aggregator *Aggregator
}

// NewController creates a controller that mutates through the aggregator's
// client and verifies with a fresh aggregation.
func NewController(aggregator *Aggregator) *Controller {
	return &Controller{
		client:     aggregator.client,
		aggregator: aggregator,
	}
}

// Transition moves the subject to target. An account already in the target
// state is left untouched. On success the fresh (or, when nothing changed,
// current) record is returned if passThrough is set, otherwise nil.
func (c *Controller) Transition(ctx context.Context, target State, subject Subject, opts Options, passThrough bool) (*Record, error) {
	record, identity, err := c.resolve(ctx, target, subject, opts)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"identity": identity,
		"target":   target.String(),
	}

	if record.Enabled == (target == Enabled) {
		tflog.SubsystemDebug(ctx, LogSubsystem, "Account already in target state", fields)
		return passThroughRecord(record, passThrough), nil
	}

	shape := SelectCallShape(opts)
	fields["call_shape"] = shape.String()
	tflog.SubsystemInfo(ctx, LogSubsystem, "Changing account state", fields)

	if err := c.client.SetEnabled(ctx, record.Object, target == Enabled, shape.Options(opts)); err != nil {
		return nil, &TransitionError{Kind: ErrMutationFailed, Identity: identity, Target: target, Err: err}
	}

	fresh := c.aggregator.Aggregate(ctx, identity, opts)
	if !fresh.Exists {
		return nil, &TransitionError{Kind: ErrVerificationFailed, Identity: identity, Target: target, Err: errors.Join(fresh.Failures...)}
	}
	if fresh.Enabled != (target == Enabled) {
		tflog.SubsystemWarn(ctx, LogSubsystem, "Account state did not converge", fields)
		return nil, &TransitionError{Kind: ErrVerificationFailed, Identity: identity, Target: target}
	}

	tflog.SubsystemInfo(ctx, LogSubsystem, "Account state changed", fields)
	return passThroughRecord(fresh, passThrough), nil
}

// resolve returns the current record and the identity used to re-read it.
func (c *Controller) resolve(ctx context.Context, target State, subject Subject, opts Options) (*Record, string, error) {
	if subject.handle == nil {
		record := c.aggregator.Aggregate(ctx, subject.identity, opts)
		if !record.Exists {
			return nil, "", &TransitionError{Kind: ErrIdentityNotFound, Identity: subject.identity, Target: target, Err: errors.Join(record.Failures...)}
		}
		return record, subject.identity, nil
	}

	record := subject.handle
	identity := handleIdentity(record)
	if !record.Exists || record.Object == nil {
		return nil, "", &TransitionError{Kind: ErrIdentityNotFound, Identity: identity, Target: target}
	}
	return record, identity, nil
}

// handleIdentity picks the most stable identifier available on a record.
func handleIdentity(record *Record) string {
	if obj := record.Object; obj != nil {
		switch {
		case obj.ObjectGUID != "":
			return obj.ObjectGUID
		case obj.AccountName != "":
			return obj.AccountName
		case obj.DistinguishedName != "":
			return obj.DistinguishedName
		}
	}
	return record.AccountName
}

func passThroughRecord(record *Record, passThrough bool) *Record {
	if passThrough {
		return record
	}
	return nil
}

package account

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

// LogSubsystem is the tflog subsystem used by this package.
const LogSubsystem = "account"

var errNoObject = errors.New("directory returned no object")

// Aggregator builds account records from a directory client.
type Aggregator struct {
	client directory.Client
	now    func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the clock used for password age.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator over client.
func NewAggregator(client directory.Client, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate resolves identity into a composite record. It never fails:
// a failed primary lookup yields a record with Exists == false and exactly one
// failure, while failed manager or group lookups are recorded on an otherwise
// complete record.
func (a *Aggregator) Aggregate(ctx context.Context, identity string, opts Options) *Record {
	id := Normalize(identity)
	dirOpts := opts.toDirectory()
	record := &Record{}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Aggregating account", map[string]any{
		"identity":   id,
		"call_shape": SelectCallShape(opts).String(),
	})

	obj, err := a.client.LookupByIdentity(ctx, id, dirOpts)
	if err == nil && obj == nil {
		err = errNoObject
	}
	if err != nil {
		a.recordFailure(ctx, record, PhaseAccount, id, err)
		return record
	}

	a.populate(record, obj)

	if obj.ManagerReference != "" {
		record.Manager = a.resolveManager(ctx, record, id, obj.ManagerReference, dirOpts)
	}

	groups, err := a.client.LookupGroupsByReferences(ctx, obj.MembershipReferences, dirOpts)
	if err != nil {
		a.recordFailure(ctx, record, PhaseGroups, id, err)
	} else {
		record.Groups = make([]Group, 0, len(groups))
		for _, g := range groups {
			if g != nil {
				record.Groups = append(record.Groups, groupFromObject(g))
			}
		}
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Aggregated account", map[string]any{
		"identity":         id,
		"enabled":          record.Enabled,
		"manager_resolved": record.Manager.Resolved(),
		"group_count":      len(record.Groups),
		"failure_count":    len(record.Failures),
	})

	return record
}

func (a *Aggregator) resolveManager(ctx context.Context, record *Record, id, ref string, opts directory.Options) *Manager {
	obj, err := a.client.LookupByReference(ctx, ref, opts)
	if err == nil && obj == nil {
		err = errNoObject
	}
	if err != nil {
		a.recordFailure(ctx, record, PhaseManager, id, err)
		return &Manager{Reference: ref}
	}

	manager := &Record{}
	a.populate(manager, obj)
	return &Manager{Record: manager, Reference: ref}
}

// populate fills the fields derived from a single directory object. Manager
// and groups are left to the caller, so manager records stay shallow.
func (a *Aggregator) populate(record *Record, obj *directory.Object) {
	record.Name = obj.Name
	record.AccountName = obj.AccountName
	record.Title = obj.Title
	record.Email = obj.Email
	record.Exists = true
	record.Enabled = obj.Enabled
	record.LockedOut = obj.LockedOut
	record.PasswordExpired = obj.PasswordExpired
	record.Object = obj
	record.OrgUnits = OrgUnits(obj.DistinguishedName)

	if obj.PasswordLastSet != nil {
		days := passwordAgeDays(*obj.PasswordLastSet, a.now())
		record.PasswordAgeDays = &days
	} else {
		record.PasswordAgeRaw = obj.PasswordLastSetRaw
	}
}

func (a *Aggregator) recordFailure(ctx context.Context, record *Record, phase Phase, id string, err error) {
	lookupErr := &LookupError{Phase: phase, Identity: id, Err: err}
	record.Failures = append(record.Failures, lookupErr)

	tflog.SubsystemWarn(ctx, LogSubsystem, "Directory lookup failed", map[string]any{
		"phase":    string(phase),
		"identity": id,
		"error":    err.Error(),
	})
}

// passwordAgeDays returns the whole days elapsed from set to now, rounded down.
func passwordAgeDays(set, now time.Time) int {
	return int(math.Floor(now.UTC().Sub(set.UTC()).Hours() / 24))
}

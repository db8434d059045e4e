// Package directory defines the capability surface used to read and mutate
// accounts in a directory service. Implementations live elsewhere (see
// internal/ldap); consumers depend only on the Client interface.
package directory

import (
	"context"
	"time"
)

// Credential is an alternate authentication context for a single call.
type Credential struct {
	Username string
	Password string
}

// Options selects the endpoint and authentication context for a call.
// The zero value means "use the process-wide default" for both.
type Options struct {
	Server     string
	Credential *Credential
}

// Object is a resolved directory entry. Account and group entries share the
// shape; fields that do not apply to an entry are left at their zero value.
type Object struct {
	Name              string
	AccountName       string
	UserPrincipalName string
	Title             string
	Email             string
	Description       string
	DistinguishedName string
	ObjectGUID        string
	ObjectSID         string

	Enabled         bool
	LockedOut       bool
	PasswordExpired bool

	// PasswordLastSet is set only when the directory reports a real timestamp.
	// PasswordLastSetRaw always carries the value as reported (possibly empty).
	PasswordLastSet    *time.Time
	PasswordLastSetRaw string

	UserAccountControl int32

	// ManagerReference is empty when the entry has no manager.
	ManagerReference     string
	MembershipReferences []string

	GroupScope    string
	GroupCategory string
}

// Client resolves and mutates directory objects.
type Client interface {
	LookupByIdentity(ctx context.Context, identity string, opts Options) (*Object, error)
	LookupByReference(ctx context.Context, ref string, opts Options) (*Object, error)
	LookupGroupsByReferences(ctx context.Context, refs []string, opts Options) ([]*Object, error)
	SetEnabled(ctx context.Context, handle *Object, enabled bool, opts Options) error
}

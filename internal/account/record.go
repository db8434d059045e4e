package account

import (
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

// Record is the composite identity of one account. It is built fresh by every
// aggregation and is not modified after it is returned.
type Record struct {
	Name        string
	AccountName string
	Title       string
	Email       string

	Exists          bool
	Enabled         bool
	LockedOut       bool
	PasswordExpired bool

	// PasswordAgeDays is nil when the directory has no last-set timestamp;
	// PasswordAgeRaw then holds whatever the directory reported.
	PasswordAgeDays *int
	PasswordAgeRaw  string

	Manager  *Manager
	OrgUnits []string

	// Object is the resolved directory entry, used as the handle for
	// subsequent mutations.
	Object *directory.Object

	// Groups is nil when the group lookup failed.
	Groups []Group

	Failures []error
}

// Manager is either a resolved record or, when resolution failed, the raw
// reference the directory returned.
type Manager struct {
	Record    *Record
	Reference string
}

// Resolved reports whether the manager lookup succeeded.
func (m *Manager) Resolved() bool {
	return m != nil && m.Record != nil
}

// Group is the subset of a group entry exposed on a Record.
type Group struct {
	Name              string
	AccountName       string
	DistinguishedName string
	ObjectGUID        string
	ObjectSID         string
	Description       string
	Scope             string
	Category          string
}

func groupFromObject(obj *directory.Object) Group {
	return Group{
		Name:              obj.Name,
		AccountName:       obj.AccountName,
		DistinguishedName: obj.DistinguishedName,
		ObjectGUID:        obj.ObjectGUID,
		ObjectSID:         obj.ObjectSID,
		Description:       obj.Description,
		Scope:             obj.GroupScope,
		Category:          obj.GroupCategory,
	}
}

// OrgUnits returns the OU values of dn, nearest parent first. Other RDN types
// (CN, DC, ...) are skipped. DNs that fail strict parsing fall back to a plain
// comma split.
func OrgUnits(dn string) []string {
	if dn == "" {
		return nil
	}

	var units []string

	parsed, err := ldap.ParseDN(dn)
	if err == nil {
		for _, rdn := range parsed.RDNs {
			for _, attr := range rdn.Attributes {
				if strings.EqualFold(attr.Type, "OU") {
					units = append(units, attr.Value)
				}
			}
		}
		return units
	}

	for component := range strings.SplitSeq(dn, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(component), "=")
		if found && strings.EqualFold(strings.TrimSpace(key), "OU") {
			units = append(units, value)
		}
	}
	return units
}

package ldap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

const (
	accountObjectFilter = "(&(objectClass=user)(!(objectClass=computer)))"
	groupObjectFilter   = "(objectClass=group)"

	attrComputedUAC = "msDS-User-Account-Control-Computed"
)

var accountAttributes = []string{
	"objectGUID",
	"objectSid",
	"distinguishedName",
	"name",
	"cn",
	"sAMAccountName",
	"userPrincipalName",
	"title",
	"mail",
	"description",
	"userAccountControl",
	attrComputedUAC,
	"lockoutTime",
	"pwdLastSet",
	"manager",
	"memberOf",
}

var groupAttributes = []string{
	"objectGUID",
	"objectSid",
	"distinguishedName",
	"name",
	"cn",
	"sAMAccountName",
	"description",
	"groupType",
}

// AccountDirectory implements directory.Client against Active Directory.
type AccountDirectory struct {
	sessions  *Sessions
	timeout   time.Duration
	batchSize int
}

var _ directory.Client = (*AccountDirectory)(nil)

// NewAccountDirectory creates an account directory. config supplies the
// search timeout and group batch size.
func NewAccountDirectory(sessions *Sessions, config *ConnectionConfig) *AccountDirectory {
	if config == nil {
		config = DefaultConfig()
	}

	batchSize := config.GroupLookupBatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().GroupLookupBatchSize
	}

	return &AccountDirectory{
		sessions:  sessions,
		timeout:   config.Timeout,
		batchSize: batchSize,
	}
}

// LookupByIdentity resolves an account by DN, GUID, SID, UPN or
// sAMAccountName.
func (d *AccountDirectory) LookupByIdentity(ctx context.Context, identity string, opts directory.Options) (*directory.Object, error) {
	session, err := d.sessions.Get(ctx, opts)
	if err != nil {
		return nil, err
	}

	entry, err := d.findAccount(ctx, session, identity)
	if err != nil {
		return nil, err
	}

	if err := d.ensureComputedUAC(ctx, session, entry); err != nil {
		tflog.SubsystemWarn(ctx, LogSubsystem, "Could not read computed account control", map[string]any{
			"dn":    entry.DN,
			"error": err.Error(),
		})
	}

	return entryToAccount(entry), nil
}

// LookupByReference resolves a manager reference, which AD stores as a DN.
func (d *AccountDirectory) LookupByReference(ctx context.Context, ref string, opts directory.Options) (*directory.Object, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, newNotFoundError("lookup_reference", ref)
	}
	return d.LookupByIdentity(ctx, ref, opts)
}

// LookupGroupsByReferences resolves group DNs in batches of OR-ed
// distinguishedName filters. Results follow refs order; references that
// match no group are skipped.
func (d *AccountDirectory) LookupGroupsByReferences(ctx context.Context, refs []string, opts directory.Options) ([]*directory.Object, error) {
	groups := make([]*directory.Object, 0, len(refs))
	if len(refs) == 0 {
		return groups, nil
	}

	session, err := d.sessions.Get(ctx, opts)
	if err != nil {
		return nil, err
	}

	byDN := make(map[string]*directory.Object, len(refs))

	for start := 0; start < len(refs); start += d.batchSize {
		batch := refs[start:min(start+d.batchSize, len(refs))]

		var filter strings.Builder
		filter.WriteString("(&" + groupObjectFilter + "(|")
		for _, ref := range batch {
			filter.WriteString("(distinguishedName=" + ldap.EscapeFilter(ref) + ")")
		}
		filter.WriteString("))")

		result, err := session.Client.SearchWithPaging(ctx, &SearchRequest{
			BaseDN:     session.BaseDN,
			Scope:      ScopeWholeSubtree,
			Filter:     filter.String(),
			Attributes: groupAttributes,
			TimeLimit:  d.timeout,
		})
		if err != nil {
			return nil, WrapError("lookup_groups", err)
		}

		for _, entry := range result.Entries {
			byDN[strings.ToLower(entry.DN)] = entryToGroup(entry)
		}
	}

	for _, ref := range refs {
		if group, ok := byDN[strings.ToLower(ref)]; ok {
			groups = append(groups, group)
			continue
		}
		tflog.SubsystemDebug(ctx, LogSubsystem, "Group reference did not resolve", map[string]any{
			"reference": ref,
		})
	}

	return groups, nil
}

// SetEnabled toggles ACCOUNTDISABLE on the account named by handle, leaving
// every other userAccountControl bit as currently stored.
func (d *AccountDirectory) SetEnabled(ctx context.Context, handle *directory.Object, enabled bool, opts directory.Options) error {
	if handle == nil || handle.DistinguishedName == "" {
		return fmt.Errorf("account handle has no distinguished name")
	}

	session, err := d.sessions.Get(ctx, opts)
	if err != nil {
		return err
	}

	result, err := session.Client.Search(ctx, &SearchRequest{
		BaseDN:     handle.DistinguishedName,
		Scope:      ScopeBaseObject,
		Filter:     accountObjectFilter,
		Attributes: []string{"userAccountControl"},
		SizeLimit:  1,
		TimeLimit:  d.timeout,
	})
	if err != nil {
		return WrapError("read_account_control", err)
	}
	if len(result.Entries) == 0 {
		return newNotFoundError("read_account_control", handle.DistinguishedName)
	}

	current := parseInt32(result.Entries[0].GetAttributeValue("userAccountControl"))
	updated := current | UACAccountDisabled
	if enabled {
		updated = current &^ UACAccountDisabled
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Updating account control", map[string]any{
		"dn":      handle.DistinguishedName,
		"enabled": enabled,
		"current": current,
		"updated": updated,
	})

	if updated == current {
		return nil
	}

	err = session.Client.Modify(ctx, &ModifyRequest{
		DN: handle.DistinguishedName,
		ReplaceAttributes: map[string][]string{
			"userAccountControl": {strconv.FormatInt(int64(updated), 10)},
		},
	})
	return WrapError("modify_account_control", err)
}

func (d *AccountDirectory) findAccount(ctx context.Context, session *Session, identity string) (*ldap.Entry, error) {
	idFilter, idType, err := IdentifierFilter(identity)
	if err != nil {
		return nil, &LDAPError{
			Operation: "lookup_account",
			Category:  ErrorCategoryValidation,
			Message:   err.Error(),
		}
	}

	req := &SearchRequest{
		BaseDN:     session.BaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     "(&" + accountObjectFilter + idFilter + ")",
		Attributes: accountAttributes,
		SizeLimit:  2,
		TimeLimit:  d.timeout,
	}
	if idType == IdentifierTypeDN {
		req.BaseDN = strings.TrimSpace(identity)
		req.Scope = ScopeBaseObject
		req.Filter = accountObjectFilter
		req.SizeLimit = 1
	}

	ambiguous := &LDAPError{
		Operation: "lookup_account",
		Category:  ErrorCategoryConflict,
		Message:   fmt.Sprintf("identifier %q (%s) matches more than one account", identity, idType),
	}

	result, err := session.Client.Search(ctx, req)
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return nil, newNotFoundError("lookup_account", identity)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded):
		return nil, ambiguous
	case err != nil:
		return nil, WrapError("lookup_account", err)
	}

	switch len(result.Entries) {
	case 0:
		return nil, newNotFoundError("lookup_account", identity)
	case 1:
		return result.Entries[0], nil
	default:
		return nil, ambiguous
	}
}

// ensureComputedUAC re-reads the constructed account control attribute with
// a base-scope search when the subtree search did not return it.
func (d *AccountDirectory) ensureComputedUAC(ctx context.Context, session *Session, entry *ldap.Entry) error {
	if entry.GetAttributeValue(attrComputedUAC) != "" {
		return nil
	}

	result, err := session.Client.Search(ctx, &SearchRequest{
		BaseDN:     entry.DN,
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{attrComputedUAC},
		SizeLimit:  1,
		TimeLimit:  d.timeout,
	})
	if err != nil {
		return err
	}

	if len(result.Entries) > 0 {
		if value := result.Entries[0].GetAttributeValues(attrComputedUAC); len(value) > 0 {
			entry.Attributes = append(entry.Attributes, ldap.NewEntryAttribute(attrComputedUAC, value))
		}
	}
	return nil
}

func entryToAccount(entry *ldap.Entry) *directory.Object {
	obj := &directory.Object{
		Name:                 entryName(entry),
		AccountName:          entry.GetAttributeValue("sAMAccountName"),
		UserPrincipalName:    entry.GetAttributeValue("userPrincipalName"),
		Title:                entry.GetAttributeValue("title"),
		Email:                entry.GetAttributeValue("mail"),
		Description:          entry.GetAttributeValue("description"),
		DistinguishedName:    entry.DN,
		ObjectGUID:           ExtractGUID(entry),
		ObjectSID:            ExtractSID(entry),
		ManagerReference:     entry.GetAttributeValue("manager"),
		MembershipReferences: entry.GetAttributeValues("memberOf"),
		PasswordLastSetRaw:   entry.GetAttributeValue("pwdLastSet"),
	}

	if obj.MembershipReferences == nil {
		obj.MembershipReferences = []string{}
	}

	uac := parseInt32(entry.GetAttributeValue("userAccountControl"))
	obj.UserAccountControl = uac
	obj.Enabled = uac&UACAccountDisabled == 0

	if computed := entry.GetAttributeValue(attrComputedUAC); computed != "" {
		flags := parseInt32(computed)
		obj.LockedOut = flags&UACComputedLockout != 0
		obj.PasswordExpired = flags&UACComputedPasswordExpired != 0
	} else {
		_, locked, _ := ParseFileTime(entry.GetAttributeValue("lockoutTime"))
		obj.LockedOut = locked
	}

	if set, ok, err := ParseFileTime(obj.PasswordLastSetRaw); err == nil && ok {
		obj.PasswordLastSet = &set
	}

	return obj
}

func entryToGroup(entry *ldap.Entry) *directory.Object {
	scope, category := ParseGroupType(parseInt32(entry.GetAttributeValue("groupType")))

	return &directory.Object{
		Name:              entryName(entry),
		AccountName:       entry.GetAttributeValue("sAMAccountName"),
		Description:       entry.GetAttributeValue("description"),
		DistinguishedName: entry.DN,
		ObjectGUID:        ExtractGUID(entry),
		ObjectSID:         ExtractSID(entry),
		GroupScope:        string(scope),
		GroupCategory:     string(category),
	}
}

func entryName(entry *ldap.Entry) string {
	if name := entry.GetAttributeValue("name"); name != "" {
		return name
	}
	return entry.GetAttributeValue("cn")
}

package ldap

import (
	"fmt"
	"strconv"
	"time"
)

// userAccountControl flags.
const (
	UACAccountDisabled      int32 = 0x00000002
	UACNormalAccount        int32 = 0x00000200
	UACPasswordNeverExpires int32 = 0x00010000
)

// msDS-User-Account-Control-Computed flags.
const (
	UACComputedLockout         int32 = 0x00000010
	UACComputedPasswordExpired int32 = 0x00800000
)

// groupType flags.
const (
	GroupTypeFlagGlobal      int32 = 0x00000002
	GroupTypeFlagDomainLocal int32 = 0x00000004
	GroupTypeFlagUniversal   int32 = 0x00000008
	GroupTypeFlagSecurity    int32 = -2147483648 // 0x80000000
)

// GroupScope represents the scope of an Active Directory group.
type GroupScope string

const (
	GroupScopeGlobal      GroupScope = "Global"
	GroupScopeUniversal   GroupScope = "Universal"
	GroupScopeDomainLocal GroupScope = "DomainLocal"
)

// GroupCategory represents the category of an Active Directory group.
type GroupCategory string

const (
	GroupCategorySecurity     GroupCategory = "Security"
	GroupCategoryDistribution GroupCategory = "Distribution"
)

// ParseGroupType decodes a groupType value into scope and category.
func ParseGroupType(groupType int32) (GroupScope, GroupCategory) {
	var scope GroupScope
	switch {
	case groupType&GroupTypeFlagGlobal != 0:
		scope = GroupScopeGlobal
	case groupType&GroupTypeFlagDomainLocal != 0:
		scope = GroupScopeDomainLocal
	case groupType&GroupTypeFlagUniversal != 0:
		scope = GroupScopeUniversal
	default:
		scope = GroupScopeGlobal
	}

	category := GroupCategoryDistribution
	if groupType&GroupTypeFlagSecurity != 0 {
		category = GroupCategorySecurity
	}

	return scope, category
}

// 100-nanosecond intervals between 1601-01-01 and 1970-01-01.
const fileTimeEpochOffset = 116444736000000000

// ParseFileTime parses an AD FILETIME attribute value. ok is false for the
// "never" encodings (empty, 0 and the int64 maximum).
func ParseFileTime(value string) (t time.Time, ok bool, err error) {
	if value == "" || value == "0" {
		return time.Time{}, false, nil
	}

	ticks, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}

	if ticks == 1<<63-1 {
		return time.Time{}, false, nil
	}

	if ticks <= fileTimeEpochOffset {
		return time.Time{}, false, fmt.Errorf("timestamp %q is before the Unix epoch", value)
	}

	return time.Unix(0, (ticks-fileTimeEpochOffset)*100).UTC(), true, nil
}

// parseInt32 parses a signed 32-bit attribute value, returning 0 when the
// value is absent or malformed.
func parseInt32(value string) int32 {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		// userAccountControl is sometimes rendered unsigned.
		u, uerr := strconv.ParseUint(value, 10, 32)
		if uerr != nil {
			return 0
		}
		return int32(u)
	}
	return int32(n)
}

package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// IdentifierType represents the format of an account identifier.
type IdentifierType int

const (
	IdentifierTypeUnknown IdentifierType = iota
	IdentifierTypeDN                     // Distinguished Name
	IdentifierTypeGUID                   // objectGUID
	IdentifierTypeSID                    // objectSid
	IdentifierTypeUPN                    // userPrincipalName
	IdentifierTypeSAM                    // sAMAccountName, optionally DOMAIN\ prefixed
)

func (i IdentifierType) String() string {
	switch i {
	case IdentifierTypeDN:
		return "DN"
	case IdentifierTypeGUID:
		return "GUID"
	case IdentifierTypeSID:
		return "SID"
	case IdentifierTypeUPN:
		return "UPN"
	case IdentifierTypeSAM:
		return "SAM"
	default:
		return "Unknown"
	}
}

var (
	dnRegex   = regexp.MustCompile(`^(?i)(CN|OU|DC|O|C|STREET|L|ST|POSTALCODE)=.+`)
	sidRegex  = regexp.MustCompile(`^S-1-\d+(-\d+)*$`)
	upnRegex  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	samRegex  = regexp.MustCompile(`^([^\\@\s]+\\)?[^\\@\s]+$`)
	guidRegex = regexp.MustCompile(`^\{?[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}\}?$`)
)

// DetectIdentifierType classifies identifier. Checks run from most to least
// specific: DN, GUID, SID, UPN, SAM.
func DetectIdentifierType(identifier string) IdentifierType {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return IdentifierTypeUnknown
	}

	switch {
	case dnRegex.MatchString(identifier):
		return IdentifierTypeDN
	case guidRegex.MatchString(identifier):
		return IdentifierTypeGUID
	case sidRegex.MatchString(identifier):
		return IdentifierTypeSID
	case upnRegex.MatchString(identifier):
		return IdentifierTypeUPN
	case samRegex.MatchString(identifier):
		return IdentifierTypeSAM
	default:
		return IdentifierTypeUnknown
	}
}

// IdentifierFilter returns the search filter component that matches
// identifier, along with the detected type. DNs are not filterable and
// return an empty filter.
func IdentifierFilter(identifier string) (string, IdentifierType, error) {
	identifier = strings.TrimSpace(identifier)
	idType := DetectIdentifierType(identifier)

	switch idType {
	case IdentifierTypeDN:
		return "", idType, nil
	case IdentifierTypeGUID:
		filter, err := GUIDToSearchFilter(identifier)
		return filter, idType, err
	case IdentifierTypeSID:
		return fmt.Sprintf("(objectSid=%s)", ldap.EscapeFilter(identifier)), idType, nil
	case IdentifierTypeUPN:
		return fmt.Sprintf("(userPrincipalName=%s)", ldap.EscapeFilter(identifier)), idType, nil
	case IdentifierTypeSAM:
		if _, sam, found := strings.Cut(identifier, `\`); found {
			identifier = sam
		}
		return fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(identifier)), idType, nil
	default:
		return "", idType, fmt.Errorf("unable to determine identifier type for %q", identifier)
	}
}

// Active Directory stores objectGUID with the first three fields
// little-endian; the remaining eight bytes are in network order.
func swapGUIDEndianness(b []byte) {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
}

// GUIDToBytes converts a GUID string to its objectGUID wire representation.
func GUIDToBytes(guid string) ([]byte, error) {
	u, err := uuid.Parse(strings.TrimSpace(guid))
	if err != nil {
		return nil, fmt.Errorf("invalid GUID %q: %w", guid, err)
	}

	b := u[:]
	swapGUIDEndianness(b)
	return b, nil
}

// GUIDFromBytes formats an objectGUID attribute value.
func GUIDFromBytes(raw []byte) (string, error) {
	if len(raw) != 16 {
		return "", fmt.Errorf("invalid GUID length: expected 16 bytes, got %d", len(raw))
	}

	b := append([]byte(nil), raw...)
	swapGUIDEndianness(b)

	u, err := uuid.FromBytes(b)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// GUIDToSearchFilter returns an objectGUID equality filter with every byte
// hex-escaped.
func GUIDToSearchFilter(guid string) (string, error) {
	b, err := GUIDToBytes(guid)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("(objectGUID=")
	for _, c := range b {
		fmt.Fprintf(&sb, `\%02x`, c)
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// ExtractGUID returns the formatted objectGUID of entry, or "".
func ExtractGUID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	guid, err := GUIDFromBytes(entry.GetRawAttributeValue("objectGUID"))
	if err != nil {
		return ""
	}
	return guid
}

// ExtractSID returns the objectSid of entry in S-1-... form, or "".
// String-valued attributes are accepted as-is.
func ExtractSID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	raw := entry.GetRawAttributeValue("objectSid")
	if len(raw) == 0 {
		return ""
	}

	if sidRegex.Match(raw) {
		return string(raw)
	}

	// Revision byte plus sub-authority count plus 6-byte authority.
	if len(raw) < 8 || len(raw) != 8+4*int(raw[1]) {
		return ""
	}

	return objectsid.Decode(raw).String()
}

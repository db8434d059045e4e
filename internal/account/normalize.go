package account

import "strings"

// DomainDelimiter separates a domain qualifier from the account token.
const DomainDelimiter = `\`

// Normalize strips a DOMAIN\ qualifier from raw. Only the first delimiter is
// significant; anything after it is returned unchanged. Text before the
// delimiter containing '=' or ',' is part of a Distinguished Name escape
// sequence, not a domain, and is left intact.
func Normalize(raw string) string {
	domain, after, found := strings.Cut(raw, DomainDelimiter)
	if !found || strings.ContainsAny(domain, "=,") {
		return raw
	}
	return after
}

/*
Package ldap implements the Active Directory side of account aggregation.

# Connection Management

Client wraps a pool of connections to servers found through DNS SRV records
or named by URL. Connections are bound on checkout with simple bind,
Kerberos (GSSAPI) or TLS client certificates, and operations retry with
exponential backoff on transient failures.

Sessions keys clients by (server, credential) so that a per-call server or
credential override reuses one connection pool for the life of the provider.

# Account Directory

AccountDirectory satisfies directory.Client:

  - accounts are found by DN, GUID, SID, UPN or sAMAccountName
  - groups are resolved from memberOf in batches of OR-ed DN filters
  - enabling and disabling flips only ACCOUNTDISABLE in userAccountControl

# Error Handling

LDAPError carries an ErrorCategory and a retryable flag; IsNotFoundError and
friends classify errors from either this package or go-ldap.
*/
package ldap

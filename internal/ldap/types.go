package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for LDAP connections.
type ConnectionConfig struct {
	// Connection settings
	Domain   string        // Domain for SRV discovery
	LDAPURLs []string      // Direct LDAP URLs (overrides domain)
	BaseDN   string        // Base DN for searches
	Timeout  time.Duration `default:"30s"`

	// Authentication settings
	Username               string // DN, UPN, or SAM format
	Password               string
	KerberosRealm          string
	KerberosKeytab         string
	KerberosConfig         string // Path to krb5.conf; generated at runtime when absent
	KerberosCCache         string
	KerberosSPN            string // Overrides ldap/<host>
	KerberosDNSLookupKDC   bool   `default:"true"`
	KerberosDNSLookupRealm bool

	// TLS settings
	TLSConfig         *tls.Config
	UseTLS            bool `default:"true"`
	SkipTLS           bool
	TLSCACertFile     string
	TLSCACert         string
	TLSClientCertFile string
	TLSClientKeyFile  string

	// Pool settings
	MaxConnections int           `default:"10"`
	MaxIdleTime    time.Duration `default:"5m"`
	HealthCheck    time.Duration `default:"30s"`

	// Retry settings
	MaxRetries     int           `default:"3"`
	InitialBackoff time.Duration `default:"500ms"`
	MaxBackoff     time.Duration `default:"30s"`
	BackoffFactor  float64       `default:"2.0"`

	// Lookup settings
	GroupLookupBatchSize int `default:"50"`
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	config := &ConnectionConfig{}
	if err := defaults.Set(config); err != nil {
		panic(fmt.Sprintf("ldap: invalid ConnectionConfig defaults: %v", err))
	}

	config.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	return config
}

// Clone returns a copy of c that can be modified without affecting c.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	clone := *c
	clone.LDAPURLs = append([]string(nil), c.LDAPURLs...)
	if c.TLSConfig != nil {
		clone.TLSConfig = c.TLSConfig.Clone()
	}
	return &clone
}

// PooledConnection represents a connection in the pool.
type PooledConnection struct {
	conn          *ldap.Conn
	lastUsed      time.Time
	healthy       bool
	authenticated bool
	authTime      time.Time
	serverInfo    *ServerInfo
	returnToPool  func(*PooledConnection)
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config", "override", "fallback"
}

// ConnectionPool manages a pool of LDAP connections.
type ConnectionPool interface {
	Get(ctx context.Context) (*PooledConnection, error)
	Close() error
	Stats() PoolStats
}

// PoolStats provides statistics about the connection pool.
type PoolStats struct {
	Idle    int
	Active  int64
	Created int64
	Errors  int64
	Uptime  time.Duration
}

// Client provides the LDAP operations the account directory is built on.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	BindWithConfig(ctx context.Context) error

	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Modify(ctx context.Context, req *ModifyRequest) error

	WhoAmI(ctx context.Context) (*WhoAmIResult, error)
	GetBaseDN(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Stats() PoolStats
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	Attributes   []string
	SizeLimit    int
	TimeLimit    time.Duration
	DerefAliases DerefAliases
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
	HasMore bool
}

// ModifyRequest encapsulates LDAP modify parameters.
type ModifyRequest struct {
	DN                string
	AddAttributes     map[string][]string
	ReplaceAttributes map[string][]string
	DeleteAttributes  []string
}

// WhoAmIResult is the parsed response of the Who Am I? extended operation.
type WhoAmIResult struct {
	AuthzID string
	Format  string // "dn", "upn", "sid", "sam", "empty" or "unknown"
	Value   string // AuthzID without its "u:"/"dn:" prefix
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota
	AuthMethodKerberos
	AuthMethodExternal
)

func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
// Kerberos takes precedence, then simple bind, then TLS client certificates.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	if c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.Username != "") {
		return AuthMethodKerberos
	}

	if c.Username != "" && c.Password != "" {
		return AuthMethodSimpleBind
	}

	if c.TLSClientCertFile != "" && c.TLSClientKeyFile != "" {
		return AuthMethodExternal
	}

	return AuthMethodSimpleBind
}

// HasAuthentication checks if any authentication method is configured.
func (c *ConnectionConfig) HasAuthentication() bool {
	hasPassword := c.Username != "" && c.Password != ""
	hasKerberos := c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.Username != "")
	hasExternal := c.TLSClientCertFile != "" && c.TLSClientKeyFile != ""

	return hasPassword || hasKerberos || hasExternal
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}

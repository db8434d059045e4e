package ldap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	pageSize          = 1000
	maxPagesPerSearch = 1000
)

// client implements the Client interface.
type client struct {
	pool       ConnectionPool
	config     *ConnectionConfig
	logContext context.Context // Context with configured subsystems for logging
}

// NewClient creates an LDAP client backed by a connection pool.
func NewClient(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Creating new LDAP client", map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     config.GetAuthMethod().String(),
		"use_tls":         config.UseTLS,
		"max_connections": config.MaxConnections,
	})

	start := time.Now()
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		tflog.SubsystemError(ctx, LogSubsystem, "Failed to create connection pool", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &client{
		pool:       pool,
		config:     config,
		logContext: ctx,
	}, nil
}

// Connect verifies that a connection can be acquired and used.
func (c *client) Connect(ctx context.Context) error {
	return LogOperation(ctx, LogSubsystem, "connection_test", map[string]any{
		"domain": c.config.Domain,
	}, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		defer conn.Close()

		return c.ping(conn)
	})
}

func (c *client) Close() error {
	return c.pool.Close()
}

// BindWithConfig authenticates a pooled connection with the configured method.
func (c *client) BindWithConfig(ctx context.Context) error {
	if !c.config.HasAuthentication() {
		return fmt.Errorf("no authentication configuration available")
	}

	authMethod := c.config.GetAuthMethod()
	return LogOperation(ctx, LogSubsystem, "authentication", map[string]any{
		"auth_method": authMethod.String(),
		"username":    c.config.Username,
	}, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		return c.withRetry(ctx, func() error {
			return c.authenticate(ctx, conn)
		})
	})
}

func (c *client) authenticate(ctx context.Context, conn *PooledConnection) error {
	switch method := c.config.GetAuthMethod(); method {
	case AuthMethodSimpleBind:
		if c.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		if err := conn.Conn().Bind(c.config.Username, c.config.Password); err != nil {
			LogLDAPError(ctx, LogSubsystem, "simple_bind", err, map[string]any{
				"username": c.config.Username,
			})
			return err
		}
		return nil
	case AuthMethodKerberos:
		return performKerberosAuth(ctx, conn.Conn(), c.config, conn.ServerInfo())
	case AuthMethodExternal:
		return conn.Conn().ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", method.String())
	}
}

// Search performs a single-request LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	fields := searchFields(req)

	var searchResult *SearchResult
	err := LogOperation(ctx, LogSubsystem, "search", fields, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			req.SizeLimit,
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			nil,
		)

		var result *ldap.SearchResult
		err = c.withRetry(ctx, func() error {
			var searchErr error
			result, searchErr = conn.Conn().Search(ldapReq)
			return searchErr
		})
		if err != nil {
			LogLDAPError(ctx, LogSubsystem, "search", err, searchFields(req))
			return fmt.Errorf("search failed: %w", err)
		}

		searchResult = &SearchResult{
			Entries: result.Entries,
			Total:   len(result.Entries),
			HasMore: req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit,
		}
		return nil
	})

	return searchResult, err
}

// SearchWithPaging performs an LDAP search using the paged results control.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	start := time.Now()
	fields := searchFields(req)
	tflog.SubsystemDebug(ctx, LogSubsystem, "Starting paged search", fields)

	conn, err := c.pool.Get(ctx)
	if err != nil {
		LogLDAPError(ctx, LogSubsystem, "get_connection", err, fields)
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var allEntries []*ldap.Entry
	pagingControl := ldap.NewControlPaging(pageSize)

	for page := 1; ; page++ {
		if page > maxPagesPerSearch {
			tflog.SubsystemWarn(ctx, LogSubsystem, "Paged search exceeded maximum page limit", map[string]any{
				"max_pages":     maxPagesPerSearch,
				"entries_found": len(allEntries),
			})
			return &SearchResult{Entries: allEntries, Total: len(allEntries), HasMore: true}, nil
		}

		if err := ctx.Err(); err != nil {
			return &SearchResult{Entries: allEntries, Total: len(allEntries), HasMore: true}, err
		}

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			0,
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			[]ldap.Control{pagingControl},
		)

		var result *ldap.SearchResult
		err = c.withRetry(ctx, func() error {
			var searchErr error
			result, searchErr = conn.Conn().Search(ldapReq)
			return searchErr
		})
		if err != nil {
			LogLDAPError(ctx, LogSubsystem, "paged_search", err, map[string]any{
				"page_number": page,
				"base_dn":     req.BaseDN,
				"filter":      req.Filter,
			})
			return nil, fmt.Errorf("paged search failed: %w", err)
		}

		allEntries = append(allEntries, result.Entries...)

		tflog.SubsystemTrace(ctx, LogSubsystem, "Completed search page", map[string]any{
			"page_number":     page,
			"entries_in_page": len(result.Entries),
			"total_entries":   len(allEntries),
		})

		responseControl, ok := ldap.FindControl(result.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(responseControl.Cookie) == 0 {
			break
		}
		pagingControl.SetCookie(responseControl.Cookie)
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Paged search completed", map[string]any{
		"base_dn":       req.BaseDN,
		"total_entries": len(allEntries),
		"duration_ms":   time.Since(start).Milliseconds(),
	})

	return &SearchResult{
		Entries: allEntries,
		Total:   len(allEntries),
	}, nil
}

func searchFields(req *SearchRequest) map[string]any {
	return map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
		"time_limit": req.TimeLimit.String(),
	}
}

// Modify modifies an existing LDAP entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}

	return LogOperation(ctx, LogSubsystem, "modify", map[string]any{
		"dn": req.DN,
	}, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		ldapReq := ldap.NewModifyRequest(req.DN, nil)
		for attr, values := range req.AddAttributes {
			ldapReq.Add(attr, values)
		}
		for attr, values := range req.ReplaceAttributes {
			ldapReq.Replace(attr, values)
		}
		for _, attr := range req.DeleteAttributes {
			ldapReq.Delete(attr, []string{})
		}

		return c.withRetry(ctx, func() error {
			return conn.Conn().Modify(ldapReq)
		})
	})
}

// Ping tests connectivity to the LDAP server.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.ping(conn)
}

func (c *client) ping(conn *PooledConnection) error {
	_, err := conn.Conn().Search(rootDSERequest(5))
	return err
}

func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry runs operation, retrying retryable failures with exponential
// backoff up to MaxRetries times.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(ctx, LogSubsystem, "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	tflog.SubsystemError(ctx, LogSubsystem, "Operation failed after all retries exhausted", map[string]any{
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return NewConnectionError("operation failed after retries", false, lastErr)
}

func (c *client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if ldap.IsErrorAnyOf(err,
		ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultOperationsError,
		ldap.ErrorNetwork,
	) {
		return true
	}

	return IsRetryableError(err) || containsAny(strings.ToLower(err.Error()),
		"connection reset",
		"bind must be completed",
	)
}

// WhoAmI performs the LDAP Who Am I? extended operation.
func (c *client) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var result *ldap.WhoAmIResult
	err = c.withRetry(ctx, func() error {
		var whoamiErr error
		result, whoamiErr = conn.Conn().WhoAmI(nil)
		return whoamiErr
	})
	if err != nil {
		return nil, fmt.Errorf("WhoAmI operation failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("WhoAmI operation returned nil result")
	}

	return ParseAuthzID(result.AuthzID), nil
}

// ParseAuthzID classifies an authorization identity as returned by Who Am I?.
func ParseAuthzID(authzID string) *WhoAmIResult {
	result := &WhoAmIResult{AuthzID: authzID}

	if authzID == "" {
		result.Format = "empty"
		return result
	}

	value := strings.TrimPrefix(strings.TrimPrefix(authzID, "u:"), "dn:")
	result.Value = value

	switch DetectIdentifierType(value) {
	case IdentifierTypeDN:
		result.Format = "dn"
	case IdentifierTypeUPN:
		result.Format = "upn"
	case IdentifierTypeSID:
		result.Format = "sid"
	case IdentifierTypeSAM:
		result.Format = "sam"
	default:
		result.Format = "unknown"
	}

	return result
}

// GetBaseDN reads defaultNamingContext from the root DSE.
func (c *client) GetBaseDN(ctx context.Context) (string, error) {
	result, err := c.Search(ctx, &SearchRequest{
		BaseDN:     "",
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"defaultNamingContext"},
		SizeLimit:  1,
		TimeLimit:  5 * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get base DN: %w", err)
	}

	if len(result.Entries) == 0 {
		return "", fmt.Errorf("no root DSE found")
	}

	baseDN := result.Entries[0].GetAttributeValue("defaultNamingContext")
	if baseDN == "" {
		return "", fmt.Errorf("no defaultNamingContext found in root DSE")
	}

	return baseDN, nil
}

package ldap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// MaxConnectionPoolLimit is the maximum allowed connections in a pool.
const MaxConnectionPoolLimit = 100

// Bound connections are re-bound after this long.
const maxAuthAge = 5 * time.Minute

// connectionPool implements ConnectionPool.
type connectionPool struct {
	ctx         context.Context // Logging context with LDAP subsystem
	config      *ConnectionConfig
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	discovery   *SRVDiscovery
	dial        func(server *ServerInfo) (*ldap.Conn, error)

	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time

	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool creates a connection pool for the servers named by
// config, discovering them through DNS when only a domain is given.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig) (ConnectionPool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := loadTLSMaterial(config)
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	config.TLSConfig = tlsConfig

	pool := &connectionPool{
		ctx:         ctx,
		config:      config,
		connections: make(chan *PooledConnection, config.MaxConnections),
		discovery:   NewSRVDiscovery(ctx),
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}
	pool.dial = pool.dialServer

	if err := pool.discoverServers(); err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Connection pool created", map[string]any{
		"server_count":    len(pool.servers),
		"max_connections": config.MaxConnections,
	})
	return pool, nil
}

func (p *connectionPool) discoverServers() error {
	var servers []*ServerInfo

	switch {
	case len(p.config.LDAPURLs) > 0:
		for _, url := range p.config.LDAPURLs {
			server, err := ParseLDAPURL(url)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", url, err)
			}
			servers = append(servers, server)
		}
	case p.config.Domain != "":
		ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
		defer cancel()

		discovered, err := p.discovery.DiscoverServers(ctx, p.config.Domain)
		if err != nil {
			return fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()
	return nil
}

// Get retrieves a connection from the pool, dialing a new one when none is
// idle. Returned connections are bound when authentication is configured.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("connection pool is closed")
	}
	p.mu.RUnlock()

	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(ctx, conn); err != nil {
					p.closeConnection(conn)
					return p.createConnection(ctx)
				}
			}
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}
		p.closeConnection(conn)
	default:
	}

	return p.createConnection(ctx)
}

// createConnection tries each server in order, backing off between rounds.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range p.servers {
			conn, err := p.createSingleConnection(ctx, server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				tflog.SubsystemDebug(p.ctx, LogSubsystem, "Connection attempt failed", map[string]any{
					"server":  ServerInfoToURL(server),
					"attempt": attempt + 1,
					"error":   err.Error(),
				})
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

func (p *connectionPool) dialServer(server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)
	tlsConfig := tlsConfigForServer(p.config.TLSConfig, server)

	if server.UseTLS {
		return ldap.DialURL(url, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(url)
	if err != nil {
		return nil, err
	}

	if p.config.UseTLS && !p.config.SkipTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}

	return conn, nil
}

func (p *connectionPool) createSingleConnection(ctx context.Context, server *ServerInfo) (*PooledConnection, error) {
	conn, err := p.dial(server)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", ServerInfoToURL(server), err)
	}

	conn.SetTimeout(p.config.Timeout)

	pooledConn := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if p.config.HasAuthentication() {
		if err := p.authenticateConnection(ctx, pooledConn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to authenticate connection to %s: %w", ServerInfoToURL(server), err)
		}
	}

	return pooledConn, nil
}

func (p *connectionPool) authenticateConnection(ctx context.Context, pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	authMethod := p.config.GetAuthMethod()
	var err error

	switch authMethod {
	case AuthMethodSimpleBind:
		if p.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		err = pooledConn.conn.Bind(p.config.Username, p.config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, pooledConn.conn, p.config, pooledConn.serverInfo)
	case AuthMethodExternal:
		err = pooledConn.conn.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", authMethod.String())
	}

	if err != nil {
		pooledConn.authenticated = false
		pooledConn.authTime = time.Time{}
		return err
	}

	pooledConn.authenticated = true
	pooledConn.authTime = time.Now()
	return nil
}

func (p *connectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil || !conn.authenticated {
		return true
	}
	return time.Since(conn.authTime) > maxAuthAge
}

func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.closeConnection(conn)
		return
	}

	if !p.isConnectionHealthy(conn) {
		p.closeConnection(conn)
		return
	}

	select {
	case p.connections <- conn:
	default:
		// Pool is full.
		p.closeConnection(conn)
	}
}

func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy {
		return false
	}

	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}

	if p.config.HasAuthentication() && !conn.authenticated {
		return false
	}

	return true
}

func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
		conn.authTime = time.Time{}
	}
}

// Close closes all idle connections and shuts down the pool. Connections
// still checked out are closed as they are returned.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	return nil
}

func (p *connectionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Idle:    len(p.connections),
		Active:  atomic.LoadInt64(&p.activeConns),
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				p.performHealthCheck()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck probes up to three idle connections.
func (p *connectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	var toCheck []*PooledConnection

checkLoop:
	for range 3 {
		select {
		case conn := <-p.connections:
			toCheck = append(toCheck, conn)
		default:
			break checkLoop
		}
	}

	for _, conn := range toCheck {
		if !p.testConnection(ctx, conn) {
			p.closeConnection(conn)
			continue
		}
		// returnConnection decrements the active count.
		atomic.AddInt64(&p.activeConns, 1)
		p.returnConnection(conn)
	}
}

func (p *connectionPool) testConnection(ctx context.Context, conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	if p.config.HasAuthentication() && p.needsReAuthentication(conn) {
		if err := p.authenticateConnection(ctx, conn); err != nil {
			return false
		}
	}

	if _, err := conn.conn.Search(rootDSERequest(0)); err != nil {
		conn.authenticated = false
		conn.authTime = time.Time{}
		return false
	}

	return true
}

// rootDSERequest reads defaultNamingContext from the root DSE.
func rootDSERequest(timeLimitSeconds int) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, timeLimitSeconds, false,
		"(objectClass=*)",
		[]string{"defaultNamingContext"},
		nil,
	)
}

func validateConfig(config *ConnectionConfig) error {
	if config.MaxConnections <= 0 {
		return errors.New("MaxConnections must be positive")
	}

	if config.MaxConnections > MaxConnectionPoolLimit {
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	}

	if config.MaxIdleTime <= 0 {
		return errors.New("MaxIdleTime must be positive")
	}

	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if config.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}

	if config.GroupLookupBatchSize <= 0 {
		return errors.New("GroupLookupBatchSize must be positive")
	}

	return nil
}

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}

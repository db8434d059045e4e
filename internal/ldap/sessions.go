package ldap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

// Session is a connected client together with the naming context it
// searches under.
type Session struct {
	Client Client
	BaseDN string
}

// ClientFactory opens a client for config.
type ClientFactory func(ctx context.Context, config *ConnectionConfig) (Client, error)

type sessionKey struct {
	server   string
	username string
	password string
}

// Sessions hands out a Session per (server, credential) pair. The zero
// override maps to the default session supplied at construction; every other
// pair gets a client built from the base configuration, opened on first use
// and reused afterwards.
type Sessions struct {
	base     *ConnectionConfig
	factory  ClientFactory
	fallback *Session

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewSessions creates a registry. A nil factory uses NewClient.
func NewSessions(base *ConnectionConfig, fallback *Session, factory ClientFactory) *Sessions {
	if factory == nil {
		factory = NewClient
	}
	return &Sessions{
		base:     base,
		factory:  factory,
		fallback: fallback,
		sessions: make(map[sessionKey]*Session),
	}
}

// Get returns the session for opts.
func (s *Sessions) Get(ctx context.Context, opts directory.Options) (*Session, error) {
	if opts.Server == "" && opts.Credential == nil {
		if s.fallback == nil {
			return nil, errors.New("no default directory session configured")
		}
		return s.fallback, nil
	}

	key := sessionKey{server: opts.Server}
	if opts.Credential != nil {
		key.username = opts.Credential.Username
		key.password = opts.Credential.Password
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[key]; ok {
		return session, nil
	}

	config, err := s.overrideConfig(opts)
	if err != nil {
		return nil, err
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Opening directory session", map[string]any{
		"server":              opts.Server,
		"username":            key.username,
		"credential_override": opts.Credential != nil,
	})

	c, err := s.factory(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	baseDN := config.BaseDN
	if baseDN == "" {
		if baseDN, err = c.GetBaseDN(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	session := &Session{Client: c, BaseDN: baseDN}
	s.sessions[key] = session
	return session, nil
}

// overrideConfig derives a connection configuration for opts from the base.
func (s *Sessions) overrideConfig(opts directory.Options) (*ConnectionConfig, error) {
	if s.base == nil {
		return nil, errors.New("no base connection configuration")
	}

	config := s.base.Clone()

	if opts.Server != "" {
		server, err := ParseServer(opts.Server, config.UseTLS)
		if err != nil {
			return nil, fmt.Errorf("invalid server %q: %w", opts.Server, err)
		}
		config.LDAPURLs = []string{ServerInfoToURL(server)}
		config.MaxConnections = 1
		config.HealthCheck = 0
	}

	if opts.Credential != nil {
		config.Username = opts.Credential.Username
		config.Password = opts.Credential.Password
		// An explicit credential replaces ambient Kerberos state.
		config.KerberosCCache = ""
		config.KerberosKeytab = ""
	}

	return config, nil
}

// Len reports the number of override sessions opened so far.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes every override session and the default session.
func (s *Sessions) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, session := range s.sessions {
		errs = append(errs, session.Client.Close())
		delete(s.sessions, key)
	}
	if s.fallback != nil && s.fallback.Client != nil {
		errs = append(errs, s.fallback.Client.Close())
	}
	return errors.Join(errs...)
}

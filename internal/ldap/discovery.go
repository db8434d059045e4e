package ldap

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	defaultLDAPPort  = 389
	defaultLDAPSPort = 636
)

// SRVDiscovery finds domain controllers through DNS SRV records.
type SRVDiscovery struct {
	ctx      context.Context // Logging context with LDAP subsystem
	resolver *net.Resolver
}

// NewSRVDiscovery creates a new SRV discovery instance.
func NewSRVDiscovery(ctx context.Context) *SRVDiscovery {
	return &SRVDiscovery{
		ctx:      ctx,
		resolver: net.DefaultResolver,
	}
}

// DiscoverServers discovers LDAP servers for a domain. Lookups are tried in
// order _ldaps._tcp, _ldap._tcp, _gc._tcp; LDAPS results end the search.
// When no records exist the domain itself is tried on 636 then 389.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	start := time.Now()
	tflog.SubsystemDebug(d.ctx, LogSubsystem, "Starting server discovery", map[string]any{
		"domain": domain,
	})

	services := []struct {
		name   string
		useTLS bool
	}{
		{"_ldaps._tcp." + domain, true},
		{"_ldap._tcp." + domain, false},
		{"_gc._tcp." + domain, false},
	}

	var servers []*ServerInfo
	for _, service := range services {
		found, err := d.lookupSRV(ctx, service.name, service.useTLS)
		if err != nil {
			continue
		}
		servers = append(servers, found...)

		if service.useTLS && len(found) > 0 {
			break
		}
	}

	if len(servers) == 0 {
		tflog.SubsystemDebug(d.ctx, LogSubsystem, "No SRV records found, using fallback servers", map[string]any{
			"domain":      domain,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fallbackServers(domain), nil
	}

	sortServersByPriority(servers)

	tflog.SubsystemDebug(d.ctx, LogSubsystem, "Server discovery completed", map[string]any{
		"domain":       domain,
		"server_count": len(servers),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	return servers, nil
}

func (d *SRVDiscovery) lookupSRV(ctx context.Context, service string, useTLS bool) ([]*ServerInfo, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", service)
	if err != nil {
		tflog.SubsystemDebug(d.ctx, LogSubsystem, "SRV lookup failed", map[string]any{
			"service": service,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", service, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", service)
	}

	servers := make([]*ServerInfo, 0, len(records))
	for _, srv := range records {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			UseTLS:   useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}

	return servers, nil
}

func fallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: domain, Port: defaultLDAPSPort, UseTLS: true, Priority: 0, Weight: 100, Source: "fallback"},
		{Host: domain, Port: defaultLDAPPort, UseTLS: false, Priority: 1, Weight: 100, Source: "fallback"},
	}
}

// sortServersByPriority orders servers by ascending priority, then by
// descending weight (RFC 2782).
func sortServersByPriority(servers []*ServerInfo) {
	slices.SortStableFunc(servers, func(a, b *ServerInfo) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return b.Weight - a.Weight
	})
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}

	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}

	return nil
}

// ServerInfoToURL converts ServerInfo to LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(server.Host, strconv.Itoa(server.Port)))
}

// ParseLDAPURL parses an ldap:// or ldaps:// URL into ServerInfo.
func ParseLDAPURL(rawURL string) (*ServerInfo, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL %q: %w", rawURL, err)
	}

	var useTLS bool
	switch strings.ToLower(u.Scheme) {
	case "ldaps":
		useTLS = true
	case "ldap":
		useTLS = false
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	port := defaultLDAPPort
	if useTLS {
		port = defaultLDAPSPort
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
	}

	server := &ServerInfo{
		Host:   u.Hostname(),
		Port:   port,
		UseTLS: useTLS,
		Weight: 100,
		Source: "config",
	}

	return server, ValidateServerInfo(server)
}

// ParseServer interprets a per-call server override. It accepts an LDAP URL,
// host:port, or a bare host. A bare host gets port 636 when useTLS is set and
// 389 otherwise. Without a scheme only port 636 dials LDAPS; other ports
// connect in plain text and rely on StartTLS.
func ParseServer(server string, useTLS bool) (*ServerInfo, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil, fmt.Errorf("server cannot be empty")
	}

	if strings.Contains(server, "://") {
		info, err := ParseLDAPURL(server)
		if err != nil {
			return nil, err
		}
		info.Source = "override"
		return info, nil
	}

	host := server
	port := 0
	if h, p, err := net.SplitHostPort(server); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
		host, port = h, n
	}

	if port == 0 {
		port = defaultLDAPPort
		if useTLS {
			port = defaultLDAPSPort
		}
	}

	info := &ServerInfo{
		Host:   host,
		Port:   port,
		UseTLS: port == defaultLDAPSPort,
		Weight: 100,
		Source: "override",
	}

	return info, ValidateServerInfo(info)
}

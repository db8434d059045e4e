package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const defaultKrb5ConfPath = "/etc/krb5.conf"

// performKerberosAuth performs a GSSAPI bind on conn.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo) error {
	krbCfg, err := prepareKerberosConfig(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	krb5confPath, cleanup, err := resolveKrb5Conf(ctx, krbCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	gssapiClient, err := createGSSAPIClient(ctx, krbCfg, krb5confPath)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(krbCfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Performing GSSAPI bind", map[string]any{
		"spn":   spn,
		"realm": krbCfg.KerberosRealm,
	})

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient picks credentials in order: explicit ccache, default
// ccache, explicit keytab, default keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig, krb5confPath string) (ldap.GSSAPIClient, error) {
	disableFAST := krb5client.DisablePAFXFAST(true)

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, disableFAST)
	}

	if ccache := defaultCCachePath(); fileExists(ccache) {
		tflog.SubsystemDebug(ctx, LogSubsystem, "Using default credential cache", map[string]any{
			"ccache": ccache,
		})
		return gssapi.NewClientFromCCache(ccache, krb5confPath, disableFAST)
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(cfg.Username, cfg.KerberosRealm, cfg.KerberosKeytab, krb5confPath, disableFAST)
	}

	if keytab := defaultKeytabPath(); cfg.Username != "" && fileExists(keytab) {
		return gssapi.NewClientWithKeytab(cfg.Username, cfg.KerberosRealm, keytab, krb5confPath, disableFAST)
	}

	if cfg.Username != "" && cfg.Password != "" {
		return gssapi.NewClientWithPassword(cfg.Username, cfg.KerberosRealm, cfg.Password, krb5confPath, disableFAST)
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// resolveKrb5Conf returns the krb5.conf path to use. When the configured (or
// default) file is missing, a DNS-discovery configuration is generated into a
// temporary file that the returned cleanup removes.
func resolveKrb5Conf(ctx context.Context, cfg *ConnectionConfig) (string, func(), error) {
	path := cfg.KerberosConfig
	if path == "" {
		path = defaultKrb5ConfPath
	}

	if fileExists(path) {
		return path, func() {}, nil
	}

	if cfg.KerberosConfig != "" {
		return "", nil, fmt.Errorf("kerberos configuration file not found at %s", cfg.KerberosConfig)
	}

	content, err := generateRuntimeKrb5Conf(ctx, cfg)
	if err != nil {
		return "", nil, err
	}

	if _, err := krb5config.NewFromString(content); err != nil {
		return "", nil, fmt.Errorf("generated krb5.conf is invalid: %w", err)
	}

	f, err := os.CreateTemp("", "krb5-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}

	return f.Name(), cleanup, nil
}

// generateRuntimeKrb5Conf renders a krb5.conf that locates KDCs through DNS.
func generateRuntimeKrb5Conf(ctx context.Context, cfg *ConnectionConfig) (string, error) {
	if cfg.KerberosRealm == "" {
		return "", fmt.Errorf("kerberos realm is required to generate krb5.conf")
	}

	realm := strings.ToUpper(cfg.KerberosRealm)
	domain := strings.ToLower(cfg.KerberosRealm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}

	tflog.SubsystemDebug(ctx, LogSubsystem, "Generating runtime krb5.conf", map[string]any{
		"realm":            realm,
		"domain":           domain,
		"dns_lookup_kdc":   cfg.KerberosDNSLookupKDC,
		"dns_lookup_realm": cfg.KerberosDNSLookupRealm,
	})

	return fmt.Sprintf(`[libdefaults]
    default_realm = %[1]s
    dns_lookup_kdc = %[2]t
    dns_lookup_realm = %[3]t
    rdns = false
    forwardable = true

[realms]
    %[1]s = {
    }

[domain_realm]
    .%[4]s = %[1]s
    %[4]s = %[1]s
`, realm, cfg.KerberosDNSLookupKDC, cfg.KerberosDNSLookupRealm, domain), nil
}

// buildServicePrincipal returns cfg.KerberosSPN, or ldap/<host> for the server.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if serverInfo == nil || serverInfo.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + serverInfo.Host, nil
}

// prepareKerberosConfig returns a copy of cfg with the realm split out of a
// user@REALM username and the realm derived from the domain when unset.
func prepareKerberosConfig(cfg *ConnectionConfig) (*ConnectionConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	prepared := cfg.Clone()

	if user, realm, found := strings.Cut(prepared.Username, "@"); found && prepared.KerberosRealm == "" {
		prepared.Username = user
		prepared.KerberosRealm = realm
	}

	if prepared.KerberosRealm == "" && prepared.Domain != "" {
		prepared.KerberosRealm = strings.ToUpper(prepared.Domain)
	}

	if prepared.KerberosRealm == "" {
		return nil, fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in username)")
	}

	hasCCache := (prepared.KerberosCCache != "" && fileExists(prepared.KerberosCCache)) || fileExists(defaultCCachePath())
	hasKeytab := (prepared.KerberosKeytab != "" && fileExists(prepared.KerberosKeytab)) || fileExists(defaultKeytabPath())

	if prepared.Username == "" && !hasCCache {
		return nil, fmt.Errorf("username (principal) is required for Kerberos authentication")
	}

	if !hasCCache && !hasKeytab && prepared.Password == "" {
		return nil, fmt.Errorf("no suitable Kerberos credentials found: provide kerberos_ccache, kerberos_keytab, password, or ensure default credential cache/keytab exists")
	}

	return prepared, nil
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func defaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

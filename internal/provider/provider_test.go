package provider

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAccProtoV6ProviderFactories is used to instantiate a provider during acceptance testing.
// The factory function is called for each Terraform CLI command to create a provider
// server that the CLI can connect to and interact with.
var testAccProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"ad": providerserver.NewProtocol6WithError(New("test")()),
}

func nullProviderModel() *ActiveDirectoryProviderModel {
	return &ActiveDirectoryProviderModel{
		Domain:               types.StringNull(),
		LdapURL:              types.StringNull(),
		BaseDN:               types.StringNull(),
		Username:             types.StringNull(),
		Password:             types.StringNull(),
		KerberosRealm:        types.StringNull(),
		KerberosKeytab:       types.StringNull(),
		KerberosConfig:       types.StringNull(),
		KerberosCCache:       types.StringNull(),
		KerberosSPN:          types.StringNull(),
		UseTLS:               types.BoolNull(),
		SkipTLSVerify:        types.BoolNull(),
		TLSCACertFile:        types.StringNull(),
		TLSCACert:            types.StringNull(),
		TLSClientCertFile:    types.StringNull(),
		TLSClientKeyFile:     types.StringNull(),
		MaxConnections:       types.Int64Null(),
		MaxIdleTime:          types.Int64Null(),
		ConnectTimeout:       types.Int64Null(),
		MaxRetries:           types.Int64Null(),
		InitialBackoff:       types.Int64Null(),
		MaxBackoff:           types.Int64Null(),
		GroupLookupBatchSize: types.Int64Null(),
	}
}

func TestBuildLDAPConfig_Defaults(t *testing.T) {
	p := &ActiveDirectoryProvider{}
	data := nullProviderModel()
	data.Domain = types.StringValue("example.com")
	data.Username = types.StringValue("svc-terraform")
	data.Password = types.StringValue("secret")

	var diags diag.Diagnostics
	config := p.buildLDAPConfig(data, &diags)
	require.False(t, diags.HasError(), "%v", diags)

	assert.Equal(t, "example.com", config.Domain)
	assert.Empty(t, config.LDAPURLs)
	assert.Equal(t, "svc-terraform", config.Username)
	assert.True(t, config.UseTLS)
	assert.False(t, config.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, 10, config.MaxConnections)
	assert.Equal(t, 5*time.Minute, config.MaxIdleTime)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, config.InitialBackoff)
	assert.Equal(t, 30*time.Second, config.MaxBackoff)
	assert.Equal(t, 50, config.GroupLookupBatchSize)
}

func TestBuildLDAPConfig_Environment(t *testing.T) {
	t.Setenv("AD_LDAP_URL", "ldaps://dc1.example.com:636")
	t.Setenv("AD_BASE_DN", "DC=example,DC=com")
	t.Setenv("AD_USERNAME", "env-user")
	t.Setenv("AD_PASSWORD", "env-secret")
	t.Setenv("AD_SKIP_TLS_VERIFY", "true")
	t.Setenv("AD_MAX_CONNECTIONS", "4")
	t.Setenv("AD_CONNECT_TIMEOUT", "5")
	t.Setenv("AD_GROUP_LOOKUP_BATCH_SIZE", "200")

	p := &ActiveDirectoryProvider{}
	data := nullProviderModel()
	// Explicit configuration wins over the environment.
	data.Username = types.StringValue("config-user")
	data.MaxConnections = types.Int64Value(8)

	var diags diag.Diagnostics
	config := p.buildLDAPConfig(data, &diags)
	require.False(t, diags.HasError(), "%v", diags)

	assert.Equal(t, []string{"ldaps://dc1.example.com:636"}, config.LDAPURLs)
	assert.Equal(t, "DC=example,DC=com", config.BaseDN)
	assert.Equal(t, "config-user", config.Username)
	assert.Equal(t, "env-secret", config.Password)
	assert.True(t, config.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, 8, config.MaxConnections)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, 200, config.GroupLookupBatchSize)
}

func TestBuildLDAPConfig_MissingAuthentication(t *testing.T) {
	t.Setenv("AD_USERNAME", "")
	t.Setenv("AD_PASSWORD", "")
	t.Setenv("AD_KERBEROS_REALM", "")

	p := &ActiveDirectoryProvider{}
	data := nullProviderModel()
	data.Domain = types.StringValue("example.com")

	var diags diag.Diagnostics
	p.buildLDAPConfig(data, &diags)

	require.True(t, diags.HasError())
	assert.Equal(t, "Missing Authentication Configuration", diags.Errors()[0].Summary())
}

func TestBuildLDAPConfig_Kerberos(t *testing.T) {
	t.Setenv("AD_PASSWORD", "")

	p := &ActiveDirectoryProvider{}
	data := nullProviderModel()
	data.Domain = types.StringValue("example.com")
	data.Username = types.StringValue("svc-terraform")
	data.KerberosRealm = types.StringValue("EXAMPLE.COM")
	data.KerberosKeytab = types.StringValue("/etc/krb5.keytab")
	data.UseTLS = types.BoolValue(false)

	var diags diag.Diagnostics
	config := p.buildLDAPConfig(data, &diags)
	require.False(t, diags.HasError(), "%v", diags)

	assert.Equal(t, "EXAMPLE.COM", config.KerberosRealm)
	assert.Equal(t, "/etc/krb5.keytab", config.KerberosKeytab)
	assert.False(t, config.UseTLS)
}

func TestProviderSchema_EnvironmentFallbackDocumented(t *testing.T) {
	resp := &provider.SchemaResponse{}
	(&ActiveDirectoryProvider{}).Schema(t.Context(), provider.SchemaRequest{}, resp)
	require.False(t, resp.Diagnostics.HasError())

	for name, attr := range resp.Schema.Attributes {
		envVar := "`AD_" + strings.ToUpper(name) + "`"
		assert.Contains(t, attr.GetMarkdownDescription(), envVar, "attribute %s", name)
	}
}

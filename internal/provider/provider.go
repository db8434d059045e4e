package provider

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

// Ensure ActiveDirectoryProvider satisfies various provider interfaces.
var _ provider.Provider = &ActiveDirectoryProvider{}
var _ provider.ProviderWithFunctions = &ActiveDirectoryProvider{}
var _ provider.ProviderWithConfigValidators = &ActiveDirectoryProvider{}

// ActiveDirectoryProvider defines the provider implementation.
type ActiveDirectoryProvider struct {
	// Version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	Version string
}

// ActiveDirectoryProviderModel describes the provider data model.
type ActiveDirectoryProviderModel struct {
	// Connection settings - mutually exclusive
	Domain  types.String `tfsdk:"domain"`
	LdapURL types.String `tfsdk:"ldap_url"`
	BaseDN  types.String `tfsdk:"base_dn"`

	// Authentication settings
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// Kerberos settings (optional)
	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	// TLS settings
	UseTLS            types.Bool   `tfsdk:"use_tls"`
	SkipTLSVerify     types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile     types.String `tfsdk:"tls_ca_cert_file"`
	TLSCACert         types.String `tfsdk:"tls_ca_cert"`
	TLSClientCertFile types.String `tfsdk:"tls_client_cert_file"`
	TLSClientKeyFile  types.String `tfsdk:"tls_client_key_file"`

	// Connection pool settings
	MaxConnections types.Int64 `tfsdk:"max_connections"`
	MaxIdleTime    types.Int64 `tfsdk:"max_idle_time"`
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`

	// Retry settings
	MaxRetries     types.Int64 `tfsdk:"max_retries"`
	InitialBackoff types.Int64 `tfsdk:"initial_backoff"`
	MaxBackoff     types.Int64 `tfsdk:"max_backoff"`

	// Lookup settings
	GroupLookupBatchSize types.Int64 `tfsdk:"group_lookup_batch_size"`
}

func (p *ActiveDirectoryProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "ad"
	resp.Version = p.Version
}

func (p *ActiveDirectoryProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads Active Directory account records and enables or disables accounts over LDAP. " +
			"Data sources and resources may target a specific domain controller or bind with their own credentials.",
		Attributes: map[string]schema.Attribute{
			"domain": schema.StringAttribute{
				MarkdownDescription: envDescription("Domain used to discover domain controllers via DNS SRV records. Conflicts with `ldap_url`.", "AD_DOMAIN"),
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: envDescription("Domain controller URL, e.g. `ldaps://dc1.example.com:636`. Conflicts with `domain`.", "AD_LDAP_URL"),
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: envDescription("Search base for account lookups. Read from the root DSE when unset.", "AD_BASE_DN"),
				Optional:            true,
			},

			"username": schema.StringAttribute{
				MarkdownDescription: envDescription("Bind account as a DN, UPN or sAMAccountName.", "AD_USERNAME"),
				Optional:            true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: envDescription("Bind password.", "AD_PASSWORD"),
				Optional:            true,
				Sensitive:           true,
			},

			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: envDescription("Kerberos realm. Enables GSSAPI binds.", "AD_KERBEROS_REALM"),
				Optional:            true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: envDescription("Keytab for the bind principal.", "AD_KERBEROS_KEYTAB"),
				Optional:            true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: envDescription("krb5.conf path. A runtime configuration is generated when unset.", "AD_KERBEROS_CONFIG"),
				Optional:            true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: envDescription("Credential cache holding existing tickets.", "AD_KERBEROS_CCACHE"),
				Optional:            true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: envDescription("Service principal override, e.g. `ldap/dc1.example.com`, for controllers addressed by IP.", "AD_KERBEROS_SPN"),
				Optional:            true,
			},

			"use_tls": schema.BoolAttribute{
				MarkdownDescription: envDescription("Connect over LDAPS. Defaults to `true`.", "AD_USE_TLS"),
				Optional:            true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: envDescription("Disable certificate verification. Defaults to `false`.", "AD_SKIP_TLS_VERIFY"),
				Optional:            true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: envDescription("CA bundle path. Conflicts with `tls_ca_cert`.", "AD_TLS_CA_CERT_FILE"),
				Optional:            true,
			},
			"tls_ca_cert": schema.StringAttribute{
				MarkdownDescription: envDescription("PEM-encoded CA bundle.", "AD_TLS_CA_CERT"),
				Optional:            true,
				Sensitive:           true,
			},
			"tls_client_cert_file": schema.StringAttribute{
				MarkdownDescription: envDescription("Client certificate for mutual TLS.", "AD_TLS_CLIENT_CERT_FILE"),
				Optional:            true,
			},
			"tls_client_key_file": schema.StringAttribute{
				MarkdownDescription: envDescription("Client key for mutual TLS.", "AD_TLS_CLIENT_KEY_FILE"),
				Optional:            true,
				Sensitive:           true,
			},

			"max_connections": schema.Int64Attribute{
				MarkdownDescription: envDescription("Pooled connections per session. Defaults to `10`.", "AD_MAX_CONNECTIONS"),
				Optional:            true,
			},
			"max_idle_time": schema.Int64Attribute{
				MarkdownDescription: envDescription("Seconds before an idle connection is closed. Defaults to `300`.", "AD_MAX_IDLE_TIME"),
				Optional:            true,
			},
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: envDescription("Connection timeout in seconds. Defaults to `30`.", "AD_CONNECT_TIMEOUT"),
				Optional:            true,
			},

			"max_retries": schema.Int64Attribute{
				MarkdownDescription: envDescription("Retries for transient LDAP failures. Defaults to `3`.", "AD_MAX_RETRIES"),
				Optional:            true,
			},
			"initial_backoff": schema.Int64Attribute{
				MarkdownDescription: envDescription("First retry delay in milliseconds. Defaults to `500`.", "AD_INITIAL_BACKOFF"),
				Optional:            true,
			},
			"max_backoff": schema.Int64Attribute{
				MarkdownDescription: envDescription("Retry delay ceiling in seconds. Defaults to `30`.", "AD_MAX_BACKOFF"),
				Optional:            true,
			},

			"group_lookup_batch_size": schema.Int64Attribute{
				MarkdownDescription: envDescription("Group references resolved per search when expanding memberships. Defaults to `50`.", "AD_GROUP_LOOKUP_BATCH_SIZE"),
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.Between(1, 500),
				},
			},
		},
	}
}

func envDescription(description, envVar string) string {
	return description + " Can be set via the `" + envVar + "` environment variable."
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *ActiveDirectoryProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		// Domain and ldap_url are mutually exclusive
		providervalidator.Conflicting(
			path.MatchRoot("domain"),
			path.MatchRoot("ldap_url"),
		),
		// At least one connection method must be specified
		providervalidator.AtLeastOneOf(
			path.MatchRoot("domain"),
			path.MatchRoot("ldap_url"),
		),
		// TLS cert file and cert content are mutually exclusive
		providervalidator.Conflicting(
			path.MatchRoot("tls_ca_cert_file"),
			path.MatchRoot("tls_ca_cert"),
		),
	}
}

func (p *ActiveDirectoryProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data ActiveDirectoryProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring Active Directory provider", map[string]any{
		"version": p.Version,
	})

	config := p.buildLDAPConfig(&data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	start := time.Now()
	client, err := ldapclient.NewClient(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Failed to create LDAP client", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Create LDAP Client",
			"An unexpected error occurred when creating the LDAP client. "+
				"If the error is not clear, please contact the provider developers.\n\n"+
				"LDAP Client Error: "+err.Error(),
		)
		return
	}

	tflog.Debug(ctx, "LDAP client created successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	start = time.Now()
	if err := client.Connect(ctx); err != nil {
		tflog.Error(ctx, "Connection test failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		_ = client.Close()
		resp.Diagnostics.AddError(
			"Unable to Connect to Active Directory",
			"The provider could not establish a connection to Active Directory. "+
				"Please verify your configuration settings.\n\n"+
				"Connection Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Connection established successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	start = time.Now()
	if err := client.BindWithConfig(ctx); err != nil {
		tflog.Error(ctx, "Authentication test failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		_ = client.Close()
		resp.Diagnostics.AddError(
			"Authentication Failed",
			"The provider could not authenticate with Active Directory. "+
				"Please verify your authentication credentials and settings.\n\n"+
				"Authentication Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Authentication successful", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	baseDN := config.BaseDN
	if baseDN == "" {
		baseDN, err = client.GetBaseDN(ctx)
		if err != nil {
			_ = client.Close()
			resp.Diagnostics.AddError(
				"Unable to Determine Base DN",
				"The provider could not read defaultNamingContext from the root DSE. "+
					"Set `base_dn` explicitly or verify the bind account can read the root DSE.\n\n"+
					"Error: "+err.Error(),
			)
			return
		}
	}

	sessions := ldapclient.NewSessions(config, &ldapclient.Session{Client: client, BaseDN: baseDN}, nil)
	providerData := ldapclient.NewProviderData(ldapclient.NewAccountDirectory(sessions, config), sessions)

	if err := providerData.ValidateConnection(ctx); err != nil {
		_ = providerData.Close()
		resp.Diagnostics.AddError(
			"Unable to Validate Active Directory Connection",
			"The provider connected but a follow-up health check failed.\n\n"+
				"Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Active Directory provider configured successfully", map[string]any{
		"base_dn": baseDN,
	})

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

// configureLogging sets up logging configuration based on environment variables.
func (p *ActiveDirectoryProvider) configureLogging(ctx context.Context) context.Context {
	ctx = tflog.SetField(ctx, "provider", "ad")
	ctx = tflog.SetField(ctx, "provider_version", p.Version)
	ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, "password", "tls_ca_cert")
	ctx = initializeLogging(ctx)

	tflog.Debug(ctx, "Active Directory provider logging configured")

	return ctx
}

// buildLDAPConfig constructs the LDAP client configuration from provider config and environment variables.
func (p *ActiveDirectoryProvider) buildLDAPConfig(data *ActiveDirectoryProviderModel, diags *diag.Diagnostics) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	// Connection settings
	if domain := p.getStringValue(data.Domain, "AD_DOMAIN"); domain != "" {
		config.Domain = domain
	}

	if ldapURL := p.getStringValue(data.LdapURL, "AD_LDAP_URL"); ldapURL != "" {
		config.LDAPURLs = []string{ldapURL}
	}

	if baseDN := p.getStringValue(data.BaseDN, "AD_BASE_DN"); baseDN != "" {
		config.BaseDN = baseDN
	}

	// Authentication settings - validate that we have credentials
	username := p.getStringValue(data.Username, "AD_USERNAME")
	password := p.getStringValue(data.Password, "AD_PASSWORD")
	kerberosRealm := p.getStringValue(data.KerberosRealm, "AD_KERBEROS_REALM")
	kerberosKeytab := p.getStringValue(data.KerberosKeytab, "AD_KERBEROS_KEYTAB")
	kerberosConfig := p.getStringValue(data.KerberosConfig, "AD_KERBEROS_CONFIG")
	kerberosCCache := p.getStringValue(data.KerberosCCache, "AD_KERBEROS_CCACHE")
	kerberosSPN := p.getStringValue(data.KerberosSPN, "AD_KERBEROS_SPN")

	// Check that we have some form of authentication
	hasPasswordAuth := username != "" && password != ""
	hasKerberosAuth := kerberosRealm != ""

	if !hasPasswordAuth && !hasKerberosAuth {
		diags.AddError(
			"Missing Authentication Configuration",
			"Either username/password authentication or Kerberos authentication must be configured. "+
				"For username/password: provide 'username' and 'password' attributes or set AD_USERNAME and AD_PASSWORD environment variables. "+
				"For Kerberos: provide 'kerberos_realm' and optionally 'username'/'password' (for password auth), 'kerberos_keytab' (for keytab auth), or 'kerberos_ccache' (for credential cache auth).",
		)
		return config
	}

	// Set authentication fields in ConnectionConfig
	config.Username = username
	config.Password = password
	config.KerberosRealm = kerberosRealm
	config.KerberosKeytab = kerberosKeytab
	config.KerberosConfig = kerberosConfig
	config.KerberosCCache = kerberosCCache
	config.KerberosSPN = kerberosSPN

	// TLS settings
	if useTLS := p.getBoolValue(data.UseTLS, "AD_USE_TLS", true); !useTLS {
		config.UseTLS = false
	}

	if skipTLSVerify := p.getBoolValue(data.SkipTLSVerify, "AD_SKIP_TLS_VERIFY", false); skipTLSVerify {
		config.TLSConfig.InsecureSkipVerify = true
	}

	// Set TLS certificate fields in ConnectionConfig
	config.TLSCACertFile = p.getStringValue(data.TLSCACertFile, "AD_TLS_CA_CERT_FILE")
	config.TLSCACert = p.getStringValue(data.TLSCACert, "AD_TLS_CA_CERT")
	config.TLSClientCertFile = p.getStringValue(data.TLSClientCertFile, "AD_TLS_CLIENT_CERT_FILE")
	config.TLSClientKeyFile = p.getStringValue(data.TLSClientKeyFile, "AD_TLS_CLIENT_KEY_FILE")

	// Connection pool settings
	if maxConnections := p.getInt64Value(data.MaxConnections, "AD_MAX_CONNECTIONS", 10); maxConnections > 0 {
		config.MaxConnections = int(maxConnections)
	}

	if maxIdleTime := p.getInt64Value(data.MaxIdleTime, "AD_MAX_IDLE_TIME", 300); maxIdleTime > 0 {
		config.MaxIdleTime = time.Duration(maxIdleTime) * time.Second
	}

	if connectTimeout := p.getInt64Value(data.ConnectTimeout, "AD_CONNECT_TIMEOUT", 30); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}

	// Retry settings
	if maxRetries := p.getInt64Value(data.MaxRetries, "AD_MAX_RETRIES", 3); maxRetries >= 0 {
		config.MaxRetries = int(maxRetries)
	}

	if initialBackoff := p.getInt64Value(data.InitialBackoff, "AD_INITIAL_BACKOFF", 500); initialBackoff > 0 {
		config.InitialBackoff = time.Duration(initialBackoff) * time.Millisecond
	}

	if maxBackoff := p.getInt64Value(data.MaxBackoff, "AD_MAX_BACKOFF", 30); maxBackoff > 0 {
		config.MaxBackoff = time.Duration(maxBackoff) * time.Second
	}

	if batchSize := p.getInt64Value(data.GroupLookupBatchSize, "AD_GROUP_LOOKUP_BATCH_SIZE", 50); batchSize > 0 {
		config.GroupLookupBatchSize = int(batchSize)
	}

	return config
}

// Helper functions for configuration value resolution

func (p *ActiveDirectoryProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *ActiveDirectoryProvider) getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ActiveDirectoryProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ActiveDirectoryProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewAccountStateResource,
	}
}

func (p *ActiveDirectoryProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewAccountDataSource,
		NewWhoAmIDataSource,
	}
}

func (p *ActiveDirectoryProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewNormalizeIdentityFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &ActiveDirectoryProvider{
			Version: version,
		}
	}
}

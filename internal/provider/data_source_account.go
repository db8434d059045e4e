package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
	"github.com/isometry/terraform-provider-adaccount/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &AccountDataSource{}

func NewAccountDataSource() datasource.DataSource {
	return &AccountDataSource{}
}

// AccountDataSource reads the composite record of one account.
type AccountDataSource struct {
	aggregator *account.Aggregator
}

// AccountDataSourceModel describes the data source data model.
type AccountDataSourceModel struct {
	// Lookup
	Identity types.String `tfsdk:"identity"`
	Server   types.String `tfsdk:"server"`
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	ID     types.String `tfsdk:"id"`
	Exists types.Bool   `tfsdk:"exists"`

	// Identity
	Name              types.String `tfsdk:"name"`
	AccountName       types.String `tfsdk:"account_name"`
	Title             types.String `tfsdk:"title"`
	Email             types.String `tfsdk:"email"`
	DistinguishedName types.String `tfsdk:"distinguished_name"`
	ObjectGUID        types.String `tfsdk:"object_guid"`
	ObjectSID         types.String `tfsdk:"object_sid"`
	UserPrincipalName types.String `tfsdk:"user_principal_name"`

	// Status
	Enabled         types.Bool   `tfsdk:"enabled"`
	LockedOut       types.Bool   `tfsdk:"locked_out"`
	PasswordExpired types.Bool   `tfsdk:"password_expired"`
	PasswordAgeDays types.Int64  `tfsdk:"password_age_days"`
	PasswordAgeRaw  types.String `tfsdk:"password_last_set_raw"`

	// Relations
	Manager  types.Object `tfsdk:"manager"`
	OrgUnits types.List   `tfsdk:"org_units"`
	Groups   types.List   `tfsdk:"groups"`

	Failures types.List `tfsdk:"failures"`
}

func (d *AccountDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_account"
}

func (d *AccountDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads the composite identity record of an Active Directory account: identity attributes, " +
			"account status, password age, manager, group memberships, and organizational unit path.\n\n" +
			"Lookups never fail the plan. When the account cannot be found `exists` is `false` and the cause is " +
			"reported as a warning. A failed manager or group lookup is also reported as a warning and leaves the " +
			"rest of the record populated.",

		Attributes: map[string]schema.Attribute{
			"identity": schema.StringAttribute{
				MarkdownDescription: "The account to look up: sAMAccountName (optionally `DOMAIN\\` prefixed), " +
					"user principal name, Distinguished Name, objectGUID, or SID.",
				Required: true,
				Validators: []validator.String{
					validators.IsValidIdentity(),
				},
			},
			"server": schema.StringAttribute{
				MarkdownDescription: "Domain controller to query instead of the provider default. " +
					"Accepts a host, `host:port`, or an `ldap://` / `ldaps://` URL.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidServer(),
				},
			},
			"username": schema.StringAttribute{
				MarkdownDescription: "Username to bind as instead of the provider credentials. Requires `password`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
					stringvalidator.AlsoRequires(path.MatchRoot("password")),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for `username`.",
				Optional:            true,
				Sensitive:           true,
				Validators: []validator.String{
					stringvalidator.AlsoRequires(path.MatchRoot("username")),
				},
			},

			"id": schema.StringAttribute{
				MarkdownDescription: "The normalized identity that was looked up.",
				Computed:            true,
			},
			"exists": schema.BoolAttribute{
				MarkdownDescription: "Whether the account was found. All other computed attributes are empty when `false`.",
				Computed:            true,
			},

			"name": schema.StringAttribute{
				MarkdownDescription: "The display name of the account.",
				Computed:            true,
			},
			"account_name": schema.StringAttribute{
				MarkdownDescription: "The sAMAccountName of the account.",
				Computed:            true,
			},
			"title": schema.StringAttribute{
				MarkdownDescription: "The job title of the account holder.",
				Computed:            true,
			},
			"email": schema.StringAttribute{
				MarkdownDescription: "The primary email address (mail attribute).",
				Computed:            true,
			},
			"distinguished_name": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name of the account.",
				Computed:            true,
			},
			"object_guid": schema.StringAttribute{
				MarkdownDescription: "The objectGUID of the account.",
				Computed:            true,
			},
			"object_sid": schema.StringAttribute{
				MarkdownDescription: "The Security Identifier of the account.",
				Computed:            true,
			},
			"user_principal_name": schema.StringAttribute{
				MarkdownDescription: "The user principal name of the account.",
				Computed:            true,
			},

			"enabled": schema.BoolAttribute{
				MarkdownDescription: "Whether the account is enabled.",
				Computed:            true,
			},
			"locked_out": schema.BoolAttribute{
				MarkdownDescription: "Whether the account is currently locked out.",
				Computed:            true,
			},
			"password_expired": schema.BoolAttribute{
				MarkdownDescription: "Whether the account password has expired.",
				Computed:            true,
			},
			"password_age_days": schema.Int64Attribute{
				MarkdownDescription: "Whole days since the password was last set. Null when the directory holds no " +
					"timestamp, for example when the password must be changed at next logon.",
				Computed: true,
			},
			"password_last_set_raw": schema.StringAttribute{
				MarkdownDescription: "The raw pwdLastSet value, populated only when `password_age_days` is null.",
				Computed:            true,
			},

			"manager": schema.SingleNestedAttribute{
				MarkdownDescription: "The manager of the account. Null when the account has no manager. When the manager " +
					"cannot be resolved `resolved` is `false` and only `reference` is set.",
				Computed: true,
				Attributes: map[string]schema.Attribute{
					"resolved": schema.BoolAttribute{
						MarkdownDescription: "Whether the manager reference was resolved.",
						Computed:            true,
					},
					"reference": schema.StringAttribute{
						MarkdownDescription: "The manager reference as stored on the account (usually a DN).",
						Computed:            true,
					},
					"name": schema.StringAttribute{
						MarkdownDescription: "The display name of the manager.",
						Computed:            true,
					},
					"account_name": schema.StringAttribute{
						MarkdownDescription: "The sAMAccountName of the manager.",
						Computed:            true,
					},
					"title": schema.StringAttribute{
						MarkdownDescription: "The job title of the manager.",
						Computed:            true,
					},
					"email": schema.StringAttribute{
						MarkdownDescription: "The email address of the manager.",
						Computed:            true,
					},
					"enabled": schema.BoolAttribute{
						MarkdownDescription: "Whether the manager account is enabled.",
						Computed:            true,
					},
					"distinguished_name": schema.StringAttribute{
						MarkdownDescription: "The Distinguished Name of the manager.",
						Computed:            true,
					},
				},
			},
			"org_units": schema.ListAttribute{
				MarkdownDescription: "Organizational units containing the account, nearest first.",
				ElementType:         types.StringType,
				Computed:            true,
			},
			"groups": schema.ListNestedAttribute{
				MarkdownDescription: "Groups the account is a direct member of. Null when the group lookup failed.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "The name of the group.",
							Computed:            true,
						},
						"account_name": schema.StringAttribute{
							MarkdownDescription: "The sAMAccountName of the group.",
							Computed:            true,
						},
						"distinguished_name": schema.StringAttribute{
							MarkdownDescription: "The Distinguished Name of the group.",
							Computed:            true,
						},
						"object_guid": schema.StringAttribute{
							MarkdownDescription: "The objectGUID of the group.",
							Computed:            true,
						},
						"object_sid": schema.StringAttribute{
							MarkdownDescription: "The Security Identifier of the group.",
							Computed:            true,
						},
						"description": schema.StringAttribute{
							MarkdownDescription: "The description of the group.",
							Computed:            true,
						},
						"scope": schema.StringAttribute{
							MarkdownDescription: "The group scope: `Global`, `DomainLocal`, or `Universal`.",
							Computed:            true,
						},
						"category": schema.StringAttribute{
							MarkdownDescription: "The group category: `Security` or `Distribution`.",
							Computed:            true,
						},
					},
				},
			},
			"failures": schema.ListAttribute{
				MarkdownDescription: "Lookup failures encountered while building the record, in the order they occurred.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *AccountDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	providerData := providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
	if providerData == nil {
		return
	}

	d.aggregator = providerData.Aggregator
}

func (d *AccountDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data AccountDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ad_account", "read", map[string]any{
		"identity": data.Identity.ValueString(),
	})
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	if d.aggregator == nil {
		addUnconfiguredError(&resp.Diagnostics)
		return
	}

	opts := callOptions(data.Server, data.Username, data.Password)
	record := d.aggregator.Aggregate(ctx, data.Identity.ValueString(), opts)

	tflog.SubsystemDebug(ctx, "provider", "Aggregated AD account", map[string]any{
		"identity":      data.Identity.ValueString(),
		"exists":        record.Exists,
		"failure_count": len(record.Failures),
	})

	addFailureWarnings(record, "Account Lookup Incomplete", &resp.Diagnostics)

	mapRecordToAccountModel(record, &data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// mapRecordToAccountModel copies an aggregated record into the data source
// model. Lookup inputs are left as configured.
func mapRecordToAccountModel(record *account.Record, data *AccountDataSourceModel, diags *diag.Diagnostics) {
	data.ID = types.StringValue(account.Normalize(data.Identity.ValueString()))
	data.Exists = types.BoolValue(record.Exists)

	fields := fieldsFromRecord(record)
	data.Name = fields.Name
	data.AccountName = fields.AccountName
	data.DistinguishedName = fields.DistinguishedName
	data.ObjectGUID = fields.ObjectGUID
	data.ObjectSID = fields.ObjectSID
	data.UserPrincipalName = fields.UserPrincipalName
	data.LockedOut = fields.LockedOut
	data.Title = types.StringValue(record.Title)
	data.Email = types.StringValue(record.Email)

	data.Enabled = types.BoolValue(record.Enabled)
	data.PasswordExpired = types.BoolValue(record.PasswordExpired)
	data.PasswordAgeDays = passwordAge(record)
	data.PasswordAgeRaw = types.StringValue(record.PasswordAgeRaw)

	data.Manager = managerObject(record.Manager, diags)
	data.OrgUnits = orgUnitList(record, diags)
	data.Groups = groupList(record.Groups, diags)
	data.Failures = failureList(record, diags)
}

package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &WhoAmIDataSource{}

func NewWhoAmIDataSource() datasource.DataSource {
	return &WhoAmIDataSource{}
}

// WhoAmIDataSource reports the identity the provider is bound as.
type WhoAmIDataSource struct {
	providerData *ldapclient.ProviderData
}

// WhoAmIDataSourceModel describes the data source data model.
type WhoAmIDataSourceModel struct {
	ID                types.String `tfsdk:"id"`
	AuthzID           types.String `tfsdk:"authz_id"`
	Format            types.String `tfsdk:"format"`
	Value             types.String `tfsdk:"value"`
	DN                types.String `tfsdk:"dn"`
	UserPrincipalName types.String `tfsdk:"upn"`
	SAMAccountName    types.String `tfsdk:"sam_account_name"`
	SID               types.String `tfsdk:"sid"`
}

func (d *WhoAmIDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_whoami"
}

func (d *WhoAmIDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Returns the authorization identity the domain controller associates with the provider's " +
			"connection, using the LDAP \"Who Am I?\" extended operation (RFC 4532). Useful to confirm which account " +
			"will perform enable and disable operations.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `authz_id`.",
				Computed:            true,
			},
			"authz_id": schema.StringAttribute{
				MarkdownDescription: "The raw authorization ID, usually prefixed with `u:` or `dn:`.",
				Computed:            true,
			},
			"format": schema.StringAttribute{
				MarkdownDescription: "The format of the authorization ID: `dn`, `upn`, `sam`, `sid`, `empty`, or `unknown`.",
				Computed:            true,
			},
			"value": schema.StringAttribute{
				MarkdownDescription: "The authorization ID without its prefix.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name, when `format` is `dn`.",
				Computed:            true,
			},
			"upn": schema.StringAttribute{
				MarkdownDescription: "The User Principal Name, when `format` is `upn`.",
				Computed:            true,
			},
			"sam_account_name": schema.StringAttribute{
				MarkdownDescription: "The down-level logon name (`DOMAIN\\user`), when `format` is `sam`.",
				Computed:            true,
			},
			"sid": schema.StringAttribute{
				MarkdownDescription: "The Security Identifier, when `format` is `sid`.",
				Computed:            true,
			},
		},
	}
}

func (d *WhoAmIDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	d.providerData = providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *WhoAmIDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data WhoAmIDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ad_whoami", "read", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if d.providerData == nil {
		addUnconfiguredError(&resp.Diagnostics)
		return
	}

	result, err := d.providerData.WhoAmI(ctx, directory.Options{})
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Performing WhoAmI Operation",
			fmt.Sprintf("Could not perform LDAP Who Am I? operation: %s", err.Error()),
		)
		return
	}

	tflog.SubsystemDebug(ctx, "provider", "Successfully performed WhoAmI operation", map[string]any{
		"authz_id": result.AuthzID,
		"format":   result.Format,
	})

	mapWhoAmIToModel(result, &data)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// mapWhoAmIToModel fills the model; only the attribute matching the format is set.
func mapWhoAmIToModel(result *ldapclient.WhoAmIResult, data *WhoAmIDataSourceModel) {
	data.ID = types.StringValue(result.AuthzID)
	data.AuthzID = types.StringValue(result.AuthzID)
	data.Format = types.StringValue(result.Format)
	data.Value = stringOrNull(result.Value)

	data.DN = types.StringNull()
	data.UserPrincipalName = types.StringNull()
	data.SAMAccountName = types.StringNull()
	data.SID = types.StringNull()

	switch result.Format {
	case "dn":
		data.DN = types.StringValue(result.Value)
	case "upn":
		data.UserPrincipalName = types.StringValue(result.Value)
	case "sam":
		data.SAMAccountName = types.StringValue(result.Value)
	case "sid":
		data.SID = types.StringValue(result.Value)
	}
}

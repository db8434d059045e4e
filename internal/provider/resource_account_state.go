package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
	"github.com/isometry/terraform-provider-adaccount/internal/provider/planmodifiers"
	"github.com/isometry/terraform-provider-adaccount/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &AccountStateResource{}
var _ resource.ResourceWithImportState = &AccountStateResource{}

// NewAccountStateResource creates a new instance of the account state resource.
func NewAccountStateResource() resource.Resource {
	return &AccountStateResource{}
}

// AccountStateResource keeps an existing account enabled or disabled.
type AccountStateResource struct {
	aggregator *account.Aggregator
	controller *account.Controller
}

// AccountStateResourceModel describes the resource data model.
type AccountStateResourceModel struct {
	ID       types.String `tfsdk:"id"` // objectGUID (computed)
	Identity types.String `tfsdk:"identity"`
	Enabled  types.Bool   `tfsdk:"enabled"`

	Server   types.String `tfsdk:"server"`
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// Computed attributes
	Name              types.String `tfsdk:"name"`
	AccountName       types.String `tfsdk:"account_name"`
	DistinguishedName types.String `tfsdk:"distinguished_name"`
}

func (r *AccountStateResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_account_state"
}

func (r *AccountStateResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Enables or disables an existing Active Directory account. Only the account-disabled flag of " +
			"`userAccountControl` is changed; every other flag is preserved. Each change is verified by re-reading the " +
			"account.\n\nThe account itself is never created or deleted: destroying this resource leaves the account " +
			"in whatever state it was last set to.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The objectGUID of the account.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"identity": schema.StringAttribute{
				MarkdownDescription: "The account to manage: sAMAccountName (optionally `DOMAIN\\` prefixed), " +
					"user principal name, Distinguished Name, objectGUID, or SID. Pointing at a different account " +
					"replaces the resource.",
				Required: true,
				Validators: []validator.String{
					validators.IsValidIdentity(),
				},
				PlanModifiers: []planmodifier.String{
					planmodifiers.RequiresReplaceIfDifferentAccount(),
				},
			},
			"enabled": schema.BoolAttribute{
				MarkdownDescription: "Whether the account should be enabled (`true`) or disabled (`false`).",
				Required:            true,
			},
			"server": schema.StringAttribute{
				MarkdownDescription: "Domain controller to use instead of the provider default. " +
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
			"name": schema.StringAttribute{
				MarkdownDescription: "The display name of the account.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"account_name": schema.StringAttribute{
				MarkdownDescription: "The sAMAccountName of the account.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"distinguished_name": schema.StringAttribute{
				MarkdownDescription: "The Distinguished Name of the account.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *AccountStateResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	providerData := providerDataFrom(req.ProviderData, "Resource", &resp.Diagnostics)
	if providerData == nil {
		return
	}

	r.aggregator = providerData.Aggregator
	r.controller = providerData.Controller
}

func (r *AccountStateResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data AccountStateResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogResourceOperation(ctx, "ad_account_state", "create", map[string]any{
		"identity": data.Identity.ValueString(),
		"enabled":  data.Enabled.ValueBool(),
	})
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	r.transition(ctx, data.Identity.ValueString(), &data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountStateResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data AccountStateResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.aggregator == nil {
		addUnconfiguredError(&resp.Diagnostics)
		return
	}

	lookup := lookupIdentity(&data)
	tflog.SubsystemDebug(ctx, "provider", "Reading AD account state", map[string]any{
		"identity": lookup,
	})

	record := r.aggregator.Aggregate(ctx, lookup, callOptions(data.Server, data.Username, data.Password))
	if !record.Exists {
		if accountVanished(record) {
			tflog.SubsystemWarn(ctx, "provider", "Account no longer exists, removing from state", map[string]any{
				"identity": lookup,
			})
			resp.State.RemoveResource(ctx)
			return
		}

		resp.Diagnostics.AddError(
			"Error Reading Account",
			fmt.Sprintf("Could not read account %s: %s", lookup, errors.Join(record.Failures...)),
		)
		return
	}

	data.Enabled = types.BoolValue(record.Enabled)
	applyRecordToState(record, &data)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountStateResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data, state AccountStateResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogResourceOperation(ctx, "ad_account_state", "update", map[string]any{
		"identity": data.Identity.ValueString(),
		"enabled":  data.Enabled.ValueBool(),
	})
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	// The objectGUID survives renames, so prefer it over the configured identity.
	lookup := data.Identity.ValueString()
	if id := state.ID.ValueString(); id != "" {
		lookup = id
	}

	r.transition(ctx, lookup, &data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *AccountStateResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data AccountStateResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.SubsystemInfo(ctx, "provider", "Releasing AD account state; the account is left unchanged", map[string]any{
		"identity": data.Identity.ValueString(),
		"enabled":  data.Enabled.ValueBool(),
	})
}

func (r *AccountStateResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	ctx = initializeLogging(ctx)

	identity := strings.TrimSpace(req.ID)
	if identity == "" {
		resp.Diagnostics.AddError(
			"Invalid Import ID",
			"The import ID must be an account identity: sAMAccountName, user principal name, Distinguished Name, objectGUID, or SID.",
		)
		return
	}

	if r.aggregator == nil {
		addUnconfiguredError(&resp.Diagnostics)
		return
	}

	tflog.SubsystemDebug(ctx, "provider", "Importing AD account state", map[string]any{
		"identity": identity,
	})

	record := r.aggregator.Aggregate(ctx, identity, account.Options{})
	if !record.Exists {
		resp.Diagnostics.AddError(
			"Error Importing Account",
			fmt.Sprintf("Could not find account %s: %s", identity, errors.Join(record.Failures...)),
		)
		return
	}

	data := AccountStateResourceModel{
		Identity: types.StringValue(identity),
		Enabled:  types.BoolValue(record.Enabled),
		Server:   types.StringNull(),
		Username: types.StringNull(),
		Password: types.StringNull(),
	}
	applyRecordToState(record, &data)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// transition drives the account to the planned state and fills the computed
// attributes from the verified record.
func (r *AccountStateResource) transition(ctx context.Context, identity string, data *AccountStateResourceModel, diags *diag.Diagnostics) {
	if r.controller == nil {
		addUnconfiguredError(diags)
		return
	}

	target := account.StateOf(data.Enabled.ValueBool())
	opts := callOptions(data.Server, data.Username, data.Password)

	record, err := r.controller.Transition(ctx, target, account.ByIdentity(identity), opts, true)
	if err != nil {
		diags.AddError(transitionErrorSummary(err), err.Error())
		return
	}

	applyRecordToState(record, data)
}

func applyRecordToState(record *account.Record, data *AccountStateResourceModel) {
	fields := fieldsFromRecord(record)
	data.ID = fields.ObjectGUID
	data.Name = fields.Name
	data.AccountName = fields.AccountName
	data.DistinguishedName = fields.DistinguishedName
}

// lookupIdentity prefers the stored objectGUID over the configured identity.
func lookupIdentity(data *AccountStateResourceModel) string {
	if id := data.ID.ValueString(); id != "" {
		return id
	}
	return data.Identity.ValueString()
}

// accountVanished reports whether a failed aggregation means the account is
// gone rather than unreachable.
func accountVanished(record *account.Record) bool {
	for _, failure := range record.Failures {
		if ldapclient.IsNotFoundError(failure) {
			return true
		}
	}
	return false
}

func transitionErrorSummary(err error) string {
	switch {
	case errors.Is(err, account.ErrIdentityNotFound):
		return "Account Not Found"
	case errors.Is(err, account.ErrMutationFailed):
		return "Error Changing Account State"
	case errors.Is(err, account.ErrVerificationFailed):
		return "Account State Not Applied"
	default:
		return "Error Changing Account State"
	}
}

func addUnconfiguredError(diags *diag.Diagnostics) {
	diags.AddError(
		"Unconfigured Provider",
		"The provider has not been configured. Please report this issue to the provider developers.",
	)
}

func firstError(diags diag.Diagnostics) error {
	if errs := diags.Errors(); len(errs) > 0 {
		return fmt.Errorf("%s: %s", errs[0].Summary(), errs[0].Detail())
	}
	return nil
}

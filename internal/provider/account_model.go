package provider

import (
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
	"github.com/isometry/terraform-provider-adaccount/internal/directory"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

var managerAttrTypes = map[string]attr.Type{
	"resolved":           types.BoolType,
	"reference":          types.StringType,
	"name":               types.StringType,
	"account_name":       types.StringType,
	"title":              types.StringType,
	"email":              types.StringType,
	"enabled":            types.BoolType,
	"distinguished_name": types.StringType,
}

var groupAttrTypes = map[string]attr.Type{
	"name":               types.StringType,
	"account_name":       types.StringType,
	"distinguished_name": types.StringType,
	"object_guid":        types.StringType,
	"object_sid":         types.StringType,
	"description":        types.StringType,
	"scope":              types.StringType,
	"category":           types.StringType,
}

// callOptions builds account options from the per-call server and
// credential attributes. Unset or empty values fall back to the provider
// defaults.
func callOptions(server, username, password types.String) account.Options {
	var opts account.Options

	if s := server.ValueString(); s != "" {
		opts.Server = s
	}

	if u := username.ValueString(); u != "" {
		opts.Credential = &directory.Credential{
			Username: u,
			Password: password.ValueString(),
		}
	}

	return opts
}

// providerDataFrom extracts the shared provider data from a Configure request.
func providerDataFrom(data any, kind string, diags *diag.Diagnostics) *ldapclient.ProviderData {
	providerData, ok := data.(*ldapclient.ProviderData)
	if !ok {
		diags.AddError(
			fmt.Sprintf("Unexpected %s Configure Type", kind),
			fmt.Sprintf("Expected *ldapclient.ProviderData, got: %T. Please report this issue to the provider developers.", data),
		)
		return nil
	}
	return providerData
}

// addFailureWarnings surfaces each non-fatal aggregation failure as a warning.
func addFailureWarnings(record *account.Record, summary string, diags *diag.Diagnostics) {
	for _, failure := range record.Failures {
		diags.AddWarning(summary, failure.Error())
	}
}

func stringOrNull(s string) types.String {
	if s == "" {
		return types.StringNull()
	}
	return types.StringValue(s)
}

func failureList(record *account.Record, diags *diag.Diagnostics) types.List {
	elements := make([]attr.Value, 0, len(record.Failures))
	for _, failure := range record.Failures {
		elements = append(elements, types.StringValue(failure.Error()))
	}
	list, d := types.ListValue(types.StringType, elements)
	diags.Append(d...)
	return list
}

func orgUnitList(record *account.Record, diags *diag.Diagnostics) types.List {
	elements := make([]attr.Value, 0, len(record.OrgUnits))
	for _, ou := range record.OrgUnits {
		elements = append(elements, types.StringValue(ou))
	}
	list, d := types.ListValue(types.StringType, elements)
	diags.Append(d...)
	return list
}

// managerObject is null when the account has no manager. An unresolved
// manager carries only its raw reference.
func managerObject(manager *account.Manager, diags *diag.Diagnostics) types.Object {
	if manager == nil {
		return types.ObjectNull(managerAttrTypes)
	}

	values := map[string]attr.Value{
		"resolved":           types.BoolValue(manager.Resolved()),
		"reference":          stringOrNull(manager.Reference),
		"name":               types.StringNull(),
		"account_name":       types.StringNull(),
		"title":              types.StringNull(),
		"email":              types.StringNull(),
		"enabled":            types.BoolNull(),
		"distinguished_name": types.StringNull(),
	}

	if record := manager.Record; record != nil {
		values["name"] = types.StringValue(record.Name)
		values["account_name"] = types.StringValue(record.AccountName)
		values["title"] = types.StringValue(record.Title)
		values["email"] = types.StringValue(record.Email)
		values["enabled"] = types.BoolValue(record.Enabled)
		if record.Object != nil {
			values["distinguished_name"] = types.StringValue(record.Object.DistinguishedName)
		}
	}

	obj, d := types.ObjectValue(managerAttrTypes, values)
	diags.Append(d...)
	return obj
}

// groupList is null when the group lookup failed, which keeps it
// distinguishable from an account with no memberships.
func groupList(groups []account.Group, diags *diag.Diagnostics) types.List {
	groupType := types.ObjectType{AttrTypes: groupAttrTypes}
	if groups == nil {
		return types.ListNull(groupType)
	}

	elements := make([]attr.Value, 0, len(groups))
	for _, g := range groups {
		obj, d := types.ObjectValue(groupAttrTypes, map[string]attr.Value{
			"name":               types.StringValue(g.Name),
			"account_name":       types.StringValue(g.AccountName),
			"distinguished_name": types.StringValue(g.DistinguishedName),
			"object_guid":        types.StringValue(g.ObjectGUID),
			"object_sid":         types.StringValue(g.ObjectSID),
			"description":        types.StringValue(g.Description),
			"scope":              types.StringValue(g.Scope),
			"category":           types.StringValue(g.Category),
		})
		diags.Append(d...)
		elements = append(elements, obj)
	}

	list, d := types.ListValue(groupType, elements)
	diags.Append(d...)
	return list
}

func passwordAge(record *account.Record) types.Int64 {
	if record.PasswordAgeDays == nil {
		return types.Int64Null()
	}
	return types.Int64Value(int64(*record.PasswordAgeDays))
}

// recordFields are the identity attributes exposed by both the data source
// and the resource.
type recordFields struct {
	Name              types.String
	AccountName       types.String
	DistinguishedName types.String
	ObjectGUID        types.String
	ObjectSID         types.String
	UserPrincipalName types.String
	LockedOut         types.Bool
}

func fieldsFromRecord(record *account.Record) recordFields {
	fields := recordFields{
		Name:        types.StringValue(record.Name),
		AccountName: types.StringValue(record.AccountName),
		LockedOut:   types.BoolValue(record.LockedOut),
	}

	obj := record.Object
	if obj == nil {
		obj = &directory.Object{}
	}
	fields.DistinguishedName = types.StringValue(obj.DistinguishedName)
	fields.ObjectGUID = types.StringValue(obj.ObjectGUID)
	fields.ObjectSID = types.StringValue(obj.ObjectSID)
	fields.UserPrincipalName = types.StringValue(obj.UserPrincipalName)

	return fields
}

package validators

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

// Ensure the implementation satisfies the expected interface.
var _ validator.String = identityValidator{}

// identityValidator validates that a string, once any DOMAIN\ prefix is
// removed, is a DN, objectGUID, SID, UPN or sAMAccountName.
type identityValidator struct{}

// Description describes the validation in plain text.
func (v identityValidator) Description(_ context.Context) string {
	return "value must be an account identity: DN, objectGUID, SID, UPN, or sAMAccountName (optionally DOMAIN\\ prefixed)"
}

// MarkdownDescription describes the validation in Markdown.
func (v identityValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

// ValidateString performs the validation.
func (v identityValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	normalized := account.Normalize(value)

	switch ldapclient.DetectIdentifierType(normalized) {
	case ldapclient.IdentifierTypeUnknown:
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Account Identity",
			fmt.Sprintf("The value %q is not a recognised account identity. "+
				"Use a Distinguished Name, objectGUID, SID, user principal name, or sAMAccountName.", value),
		)
	case ldapclient.IdentifierTypeDN:
		if _, err := ldap.ParseDN(normalized); err != nil {
			response.Diagnostics.AddAttributeError(
				request.Path,
				"Invalid Account Identity",
				fmt.Sprintf("The value %q is not a valid Distinguished Name: %s", value, err.Error()),
			)
		}
	}
}

// IsValidIdentity returns a validator which ensures that any configured
// attribute value is a resolvable account identity.
//
// Unknown values and null values are skipped from validation.
func IsValidIdentity() validator.String {
	return identityValidator{}
}

package validators

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

var _ validator.String = serverValidator{}

// serverValidator validates a domain controller override: a host, host:port
// or ldap(s):// URL.
type serverValidator struct{}

func (v serverValidator) Description(_ context.Context) string {
	return "value must be a domain controller host, host:port, or ldap:// / ldaps:// URL"
}

func (v serverValidator) MarkdownDescription(_ context.Context) string {
	return "value must be a domain controller host, `host:port`, or `ldap://` / `ldaps://` URL"
}

func (v serverValidator) ValidateString(_ context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if _, err := ldapclient.ParseServer(value, true); err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Server",
			fmt.Sprintf("The value %q is not a valid domain controller address: %s", value, err.Error()),
		)
	}
}

// IsValidServer returns a validator for per-call server overrides.
func IsValidServer() validator.String {
	return serverValidator{}
}

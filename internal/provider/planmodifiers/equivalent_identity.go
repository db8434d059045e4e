package planmodifiers

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
)

// RequiresReplaceIfDifferentAccount returns a plan modifier that replaces
// the resource only when the identity names a different account. Rewriting
// `EXAMPLE\jdoe` as `jdoe`, or changing letter case, is an in-place update.
func RequiresReplaceIfDifferentAccount() planmodifier.String {
	return stringplanmodifier.RequiresReplaceIf(
		identityChangeRequiresReplace,
		"replaces the resource when the identity refers to a different account; domain prefix and case changes update in place",
		"replaces the resource when the identity refers to a different account; `DOMAIN\\` prefix and case changes update in place",
	)
}

func identityChangeRequiresReplace(_ context.Context, req planmodifier.StringRequest, resp *stringplanmodifier.RequiresReplaceIfFuncResponse) {
	if req.StateValue.IsNull() || req.PlanValue.IsUnknown() {
		return
	}
	resp.RequiresReplace = !EquivalentIdentities(req.StateValue.ValueString(), req.PlanValue.ValueString())
}

// EquivalentIdentities reports whether a and b resolve to the same lookup
// key once normalized.
func EquivalentIdentities(a, b string) bool {
	return strings.EqualFold(account.Normalize(a), account.Normalize(b))
}

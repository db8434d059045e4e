package planmodifiers_test

import (
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/assert"

	"github.com/isometry/terraform-provider-adaccount/internal/provider/planmodifiers"
)

func TestRequiresReplaceIfDifferentAccount_Description(t *testing.T) {
	modifier := planmodifiers.RequiresReplaceIfDifferentAccount()

	assert.Contains(t, modifier.Description(t.Context()), "different account")
	assert.Contains(t, modifier.MarkdownDescription(t.Context()), "`DOMAIN\\`")
}

func TestRequiresReplaceIfDifferentAccount_PlanModifyString(t *testing.T) {
	testSchema := schema.Schema{
		Attributes: map[string]schema.Attribute{
			"identity": schema.StringAttribute{Required: true},
		},
	}
	objectType := tftypes.Object{AttributeTypes: map[string]tftypes.Type{"identity": tftypes.String}}

	rawState := func(v string) tftypes.Value {
		return tftypes.NewValue(objectType, map[string]tftypes.Value{
			"identity": tftypes.NewValue(tftypes.String, v),
		})
	}

	tests := map[string]struct {
		state          *string
		plan           string
		requireReplace bool
	}{
		"create":                {state: nil, plan: "jdoe"},
		"unchanged":             {state: ptr("jdoe"), plan: "jdoe"},
		"domain prefix added":   {state: ptr("jdoe"), plan: `EXAMPLE\jdoe`},
		"domain prefix removed": {state: ptr(`EXAMPLE\jdoe`), plan: "jdoe"},
		"case differs":          {state: ptr("JDoe"), plan: "jdoe"},
		"different account":     {state: ptr("jdoe"), plan: "asmith", requireReplace: true},
		"upn to sam":            {state: ptr("jdoe@example.com"), plan: "jdoe", requireReplace: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stateValue := types.StringNull()
			state := tfsdk.State{Schema: testSchema, Raw: tftypes.NewValue(objectType, nil)}
			if test.state != nil {
				stateValue = types.StringValue(*test.state)
				state.Raw = rawState(*test.state)
			}

			req := planmodifier.StringRequest{
				Path:        path.Root("identity"),
				State:       state,
				StateValue:  stateValue,
				Plan:        tfsdk.Plan{Schema: testSchema, Raw: rawState(test.plan)},
				PlanValue:   types.StringValue(test.plan),
				ConfigValue: types.StringValue(test.plan),
			}
			resp := &planmodifier.StringResponse{PlanValue: req.PlanValue}

			planmodifiers.RequiresReplaceIfDifferentAccount().PlanModifyString(t.Context(), req, resp)

			assert.False(t, resp.Diagnostics.HasError())
			assert.Equal(t, test.requireReplace, resp.RequiresReplace)
			assert.Equal(t, req.PlanValue, resp.PlanValue)
		})
	}
}

func TestEquivalentIdentities(t *testing.T) {
	assert.True(t, planmodifiers.EquivalentIdentities(`CORP\Svc-Build`, "svc-build"))
	assert.True(t, planmodifiers.EquivalentIdentities("jdoe@example.com", "JDOE@EXAMPLE.COM"))
	assert.False(t, planmodifiers.EquivalentIdentities("jdoe", "jdoe@example.com"))
}

func ptr(s string) *string { return &s }

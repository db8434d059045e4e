package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
)

var _ function.Function = &NormalizeIdentityFunction{}

func NewNormalizeIdentityFunction() function.Function {
	return &NormalizeIdentityFunction{}
}

// NormalizeIdentityFunction implements the normalize_identity function.
type NormalizeIdentityFunction struct{}

func (f NormalizeIdentityFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "normalize_identity"
}

func (f NormalizeIdentityFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Strip the domain qualifier from an account identity",
		Description: "Returns the identity with any DOMAIN\\ prefix removed. Only the first backslash is significant; identities without one are returned unchanged.",
		MarkdownDescription: "Returns the identity with any `DOMAIN\\` prefix removed.\n\n" +
			"- `EXAMPLE\\jdoe` becomes `jdoe`\n" +
			"- `jdoe` is returned unchanged\n" +
			"- `A\\B\\c` becomes `B\\c`",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "identity",
				Description:         "Account identity, optionally domain qualified.",
				MarkdownDescription: "Account identity, optionally domain qualified.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f NormalizeIdentityFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var identity string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &identity))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, account.Normalize(identity)))
}

package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

// initializeLogging sets up the provider, account and ldap subsystems.
// Call it at the start of every data source Read and resource CRUD method.
//
// Levels follow TF_LOG_PROVIDER_AD_<SUBSYSTEM>.
func initializeLogging(ctx context.Context) context.Context {
	ctx = tflog.NewSubsystem(ctx, "provider",
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_AD_PROVIDER"))
	ctx = tflog.NewSubsystem(ctx, account.LogSubsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_AD_ACCOUNT"))
	ctx = tflog.NewSubsystem(ctx, ldapclient.LogSubsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_AD_LDAP"),
		tflog.WithAdditionalLocationOffset(1))
	return ctx
}

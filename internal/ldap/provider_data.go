package ldap

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adaccount/internal/account"
	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

// ProviderData is handed to every resource and data source.
type ProviderData struct {
	Directory  directory.Client
	Aggregator *account.Aggregator
	Controller *account.Controller

	sessions *Sessions
}

// NewProviderData wires the aggregation and lifecycle layers over dir.
// sessions may be nil when dir does not own any connections.
func NewProviderData(dir directory.Client, sessions *Sessions) *ProviderData {
	aggregator := account.NewAggregator(dir)
	return &ProviderData{
		Directory:  dir,
		Aggregator: aggregator,
		Controller: account.NewController(aggregator),
		sessions:   sessions,
	}
}

// ValidateConnection pings the default session.
func (pd *ProviderData) ValidateConnection(ctx context.Context) error {
	if pd.sessions == nil {
		return fmt.Errorf("LDAP client is not initialized")
	}

	session, err := pd.sessions.Get(ctx, directory.Options{})
	if err != nil {
		return err
	}

	if err := session.Client.Ping(ctx); err != nil {
		return fmt.Errorf("LDAP client connection failed: %w", err)
	}

	stats := session.Client.Stats()
	tflog.SubsystemDebug(ctx, LogSubsystem, "Provider data validation successful", map[string]any{
		"base_dn":     session.BaseDN,
		"pool_idle":   stats.Idle,
		"pool_active": stats.Active,
	})

	return nil
}

// WhoAmI reports the identity bound on the session selected by opts.
func (pd *ProviderData) WhoAmI(ctx context.Context, opts directory.Options) (*WhoAmIResult, error) {
	if pd.sessions == nil {
		return nil, fmt.Errorf("LDAP client is not initialized")
	}

	session, err := pd.sessions.Get(ctx, opts)
	if err != nil {
		return nil, err
	}

	return session.Client.WhoAmI(ctx)
}

// Close closes every session opened on behalf of the provider.
func (pd *ProviderData) Close() error {
	if pd.sessions == nil {
		return nil
	}
	return pd.sessions.Close()
}

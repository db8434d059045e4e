package provider

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
	"github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

// Test environment configuration constants.
const (
	// Environment variables for test configuration.
	EnvTestDomain   = "AD_TEST_DOMAIN"
	EnvTestLDAPURL  = "AD_TEST_LDAP_URL"
	EnvTestUsername = "AD_TEST_USERNAME"
	EnvTestPassword = "AD_TEST_PASSWORD"
	EnvTestBaseDN   = "AD_TEST_BASE_DN"
	EnvTestKeytab   = "AD_TEST_KEYTAB"
	EnvTestRealm    = "AD_TEST_REALM"

	// EnvTestAccount names a disposable account the acceptance tests may
	// enable and disable. Its original state is restored afterwards.
	EnvTestAccount = "AD_TEST_ACCOUNT"

	// Default values for testing.
	DefaultTestDomain = "example.com"
	DefaultTestBaseDN = "DC=example,DC=com"
)

// TestConfig holds common test configuration.
type TestConfig struct {
	Domain      string
	LDAPURL     string
	Username    string
	Password    string
	BaseDN      string
	Keytab      string
	Realm       string
	Account     string
	UseKerberos bool
}

// GetTestConfig returns the test configuration from environment variables.
func GetTestConfig() *TestConfig {
	config := &TestConfig{
		Domain:   getEnvWithDefault(EnvTestDomain, DefaultTestDomain),
		LDAPURL:  os.Getenv(EnvTestLDAPURL),
		Username: os.Getenv(EnvTestUsername),
		Password: os.Getenv(EnvTestPassword),
		BaseDN:   getEnvWithDefault(EnvTestBaseDN, DefaultTestBaseDN),
		Keytab:   os.Getenv(EnvTestKeytab),
		Realm:    os.Getenv(EnvTestRealm),
		Account:  os.Getenv(EnvTestAccount),
	}

	config.UseKerberos = config.Keytab != "" && config.Realm != ""

	return config
}

// IsAccTest returns true if acceptance tests should run.
func IsAccTest() bool {
	return os.Getenv("TF_ACC") != ""
}

// SkipIfNotAccTest skips the test if TF_ACC is not set.
func SkipIfNotAccTest(t *testing.T) {
	if !IsAccTest() {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}
}

// testAccPreCheckWithConfig validates the acceptance test environment.
func testAccPreCheckWithConfig(t *testing.T) *TestConfig {
	SkipIfNotAccTest(t)

	config := GetTestConfig()

	if config.Username == "" {
		t.Skipf("Skipping test: %s must be set", EnvTestUsername)
	}

	if config.Password == "" && !config.UseKerberos {
		t.Skipf("Skipping test: %s must be set (or configure Kerberos)", EnvTestPassword)
	}

	if config.LDAPURL == "" && config.Domain == DefaultTestDomain {
		t.Skipf("Skipping test: Either %s or %s must be set to a real AD environment", EnvTestLDAPURL, EnvTestDomain)
	}

	return config
}

// testAccPreCheckAccount additionally requires a disposable test account.
func testAccPreCheckAccount(t *testing.T) *TestConfig {
	config := testAccPreCheckWithConfig(t)

	if config.Account == "" {
		t.Skipf("Skipping test: %s must name an account that may be disabled", EnvTestAccount)
	}

	return config
}

// TestProviderConfig generates provider configuration for tests.
func TestProviderConfig() string {
	config := GetTestConfig()

	var providerConfig strings.Builder
	providerConfig.WriteString("provider \"ad\" {\n")

	if config.LDAPURL != "" {
		fmt.Fprintf(&providerConfig, "  ldap_url = %q\n", config.LDAPURL)
	} else {
		fmt.Fprintf(&providerConfig, "  domain = %q\n", config.Domain)
	}

	if config.BaseDN != DefaultTestBaseDN {
		fmt.Fprintf(&providerConfig, "  base_dn = %q\n", config.BaseDN)
	}

	fmt.Fprintf(&providerConfig, "  username = %q\n", config.Username)

	if config.UseKerberos {
		fmt.Fprintf(&providerConfig, "  kerberos_realm = %q\n", config.Realm)
		fmt.Fprintf(&providerConfig, "  kerberos_keytab = %q\n", config.Keytab)
	} else {
		fmt.Fprintf(&providerConfig, "  password = %q\n", config.Password)
	}

	providerConfig.WriteString("}\n")
	return providerConfig.String()
}

// testConnectionConfig builds a connection configuration for out-of-band
// checks against the test directory.
func testConnectionConfig(config *TestConfig) *ldap.ConnectionConfig {
	ldapConfig := ldap.DefaultConfig()
	ldapConfig.Domain = config.Domain
	if config.LDAPURL != "" {
		ldapConfig.Domain = ""
		ldapConfig.LDAPURLs = []string{config.LDAPURL}
	}
	ldapConfig.BaseDN = config.BaseDN
	ldapConfig.Username = config.Username
	ldapConfig.Password = config.Password
	if config.UseKerberos {
		ldapConfig.KerberosRealm = config.Realm
		ldapConfig.KerberosKeytab = config.Keytab
	}
	return ldapConfig
}

// openTestDirectory connects to the test directory outside of Terraform.
// The returned close function releases every connection.
func openTestDirectory(ctx context.Context) (directory.Client, func(), error) {
	config := testConnectionConfig(GetTestConfig())

	client, err := ldap.NewClient(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LDAP client: %w", err)
	}

	if err := client.BindWithConfig(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to bind: %w", err)
	}

	sessions := ldap.NewSessions(config, &ldap.Session{Client: client, BaseDN: config.BaseDN}, nil)
	closer := func() {
		if err := sessions.Close(); err != nil {
			log.Printf("Failed to close LDAP sessions: %v", err)
		}
	}

	return ldap.NewAccountDirectory(sessions, config), closer, nil
}

// setTestAccountEnabled forces the test account into a known state.
func setTestAccountEnabled(ctx context.Context, identity string, enabled bool) error {
	dir, closer, err := openTestDirectory(ctx)
	if err != nil {
		return err
	}
	defer closer()

	obj, err := dir.LookupByIdentity(ctx, identity, directory.Options{})
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", identity, err)
	}

	return dir.SetEnabled(ctx, obj, enabled, directory.Options{})
}

// preserveTestAccountState records the test account's current enabled flag
// and restores it when the test finishes.
func preserveTestAccountState(t *testing.T, identity string) {
	t.Helper()

	dir, closer, err := openTestDirectory(t.Context())
	if err != nil {
		t.Fatalf("Failed to open test directory: %v", err)
	}
	defer closer()

	obj, err := dir.LookupByIdentity(t.Context(), identity, directory.Options{})
	if err != nil {
		t.Fatalf("Failed to look up test account %s: %v", identity, err)
	}

	original := obj.Enabled
	t.Cleanup(func() {
		if err := setTestAccountEnabled(context.Background(), identity, original); err != nil {
			log.Printf("Failed to restore test account %s: %v", identity, err)
		}
	})
}

// Test check functions for acceptance tests

// TestCheckAccountEnabled verifies the account's enabled flag directly in AD.
func TestCheckAccountEnabled(resourceName string, want bool) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		rs, ok := s.RootModule().Resources[resourceName]
		if !ok {
			return fmt.Errorf("resource not found: %s", resourceName)
		}

		if rs.Primary.ID == "" {
			return fmt.Errorf("resource ID not set")
		}

		ctx := context.Background()
		dir, closer, err := openTestDirectory(ctx)
		if err != nil {
			return err
		}
		defer closer()

		obj, err := dir.LookupByIdentity(ctx, rs.Primary.ID, directory.Options{})
		if err != nil {
			return fmt.Errorf("account %s does not exist: %v", rs.Primary.ID, err)
		}

		if obj.Enabled != want {
			return fmt.Errorf("account %s enabled = %s, want %s",
				rs.Primary.ID, strconv.FormatBool(obj.Enabled), strconv.FormatBool(want))
		}

		return nil
	}
}

// TestCheckAccountFlip changes the account's enabled flag outside of
// Terraform, to exercise drift detection.
func TestCheckAccountFlip(resourceName string, enabled bool) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		rs, ok := s.RootModule().Resources[resourceName]
		if !ok {
			return fmt.Errorf("resource not found: %s", resourceName)
		}

		return setTestAccountEnabled(context.Background(), rs.Primary.ID, enabled)
	}
}

// Utility functions

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

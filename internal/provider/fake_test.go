package provider

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/mock"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
	ldapclient "github.com/isometry/terraform-provider-adaccount/internal/ldap"
)

const (
	testAccountGUID = "550e8400-e29b-41d4-a716-446655440000"
	testAccountDN   = "CN=John Doe,OU=Staff,OU=London,DC=example,DC=com"
	testManagerDN   = "CN=Jane Boss,OU=Staff,OU=London,DC=example,DC=com"
	testGroupDN     = "CN=Engineers,OU=Groups,DC=example,DC=com"
)

// fakeDirectory is an in-memory directory.Client. Mutations are visible to
// subsequent lookups.
type fakeDirectory struct {
	mu       sync.Mutex
	objects  []*directory.Object
	failRefs map[string]error
	setErr   error
	sets     []directory.Options
	ignore   bool // SetEnabled succeeds without changing anything
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		objects: []*directory.Object{
			{
				Name:                 "John Doe",
				AccountName:          "jdoe",
				UserPrincipalName:    "jdoe@example.com",
				Title:                "Engineer",
				Email:                "jdoe@example.com",
				DistinguishedName:    testAccountDN,
				ObjectGUID:           testAccountGUID,
				ObjectSID:            "S-1-5-21-1-2-3-1104",
				Enabled:              true,
				UserAccountControl:   0x200,
				PasswordLastSetRaw:   "0",
				ManagerReference:     testManagerDN,
				MembershipReferences: []string{testGroupDN},
			},
			{
				Name:               "Jane Boss",
				AccountName:        "jboss",
				Title:              "Director",
				Email:              "jboss@example.com",
				DistinguishedName:  testManagerDN,
				ObjectGUID:         "6fa459ea-ee8a-3ca4-894e-db77e160355e",
				Enabled:            true,
				UserAccountControl: 0x200,
			},
			{
				Name:              "Engineers",
				AccountName:       "engineers",
				DistinguishedName: testGroupDN,
				ObjectGUID:        "9b2e8c1a-7f3d-4e55-8a1b-2c3d4e5f6a7b",
				ObjectSID:         "S-1-5-21-1-2-3-2001",
				Description:       "Engineering staff",
				GroupScope:        "Global",
				GroupCategory:     "Security",
			},
		},
		failRefs: map[string]error{},
	}
}

func notFound(identity string) error {
	return &ldapclient.LDAPError{
		Operation: "search",
		Category:  ldapclient.ErrorCategoryNotFound,
		Message:   "no account matches " + identity,
	}
}

func (f *fakeDirectory) find(identity string) *directory.Object {
	for _, obj := range f.objects {
		for _, key := range []string{obj.ObjectGUID, obj.AccountName, obj.DistinguishedName, obj.UserPrincipalName} {
			if key != "" && strings.EqualFold(key, identity) {
				return obj
			}
		}
	}
	return nil
}

// remove drops an object, simulating deletion outside of Terraform.
func (f *fakeDirectory) remove(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, obj := range f.objects {
		if obj == f.find(identity) {
			f.objects = append(f.objects[:i], f.objects[i+1:]...)
			return
		}
	}
}

func (f *fakeDirectory) enabled(identity string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(identity).Enabled
}

func (f *fakeDirectory) setEnabled(identity string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.find(identity).Enabled = enabled
}

func (f *fakeDirectory) LookupByIdentity(_ context.Context, identity string, _ directory.Options) (*directory.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj := f.find(identity)
	if obj == nil {
		return nil, notFound(identity)
	}
	clone := *obj
	return &clone, nil
}

func (f *fakeDirectory) LookupByReference(ctx context.Context, ref string, opts directory.Options) (*directory.Object, error) {
	if err := f.failRefs[ref]; err != nil {
		return nil, err
	}
	return f.LookupByIdentity(ctx, ref, opts)
}

func (f *fakeDirectory) LookupGroupsByReferences(ctx context.Context, refs []string, opts directory.Options) ([]*directory.Object, error) {
	groups := make([]*directory.Object, 0, len(refs))
	for _, ref := range refs {
		obj, err := f.LookupByReference(ctx, ref, opts)
		if err != nil {
			return nil, err
		}
		groups = append(groups, obj)
	}
	return groups, nil
}

func (f *fakeDirectory) SetEnabled(_ context.Context, handle *directory.Object, enabled bool, opts directory.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sets = append(f.sets, opts)
	if f.setErr != nil {
		return f.setErr
	}
	if f.ignore {
		return nil
	}

	obj := f.find(handle.ObjectGUID)
	if obj == nil {
		return notFound(handle.ObjectGUID)
	}
	obj.Enabled = enabled
	return nil
}

// mockLDAPClient implements ldapclient.Client for the Who Am I? data source.
type mockLDAPClient struct {
	mock.Mock
}

func (m *mockLDAPClient) Connect(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockLDAPClient) Close() error { return m.Called().Error(0) }
func (m *mockLDAPClient) BindWithConfig(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockLDAPClient) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockLDAPClient) Search(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*ldapclient.SearchResult)
	return result, args.Error(1)
}

func (m *mockLDAPClient) SearchWithPaging(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*ldapclient.SearchResult)
	return result, args.Error(1)
}

func (m *mockLDAPClient) Modify(ctx context.Context, req *ldapclient.ModifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockLDAPClient) WhoAmI(ctx context.Context) (*ldapclient.WhoAmIResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*ldapclient.WhoAmIResult)
	return result, args.Error(1)
}

func (m *mockLDAPClient) GetBaseDN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockLDAPClient) Stats() ldapclient.PoolStats {
	args := m.Called()
	stats, _ := args.Get(0).(ldapclient.PoolStats)
	return stats
}

// objectValue builds a value of typ from values, leaving every other
// attribute null.
func objectValue(typ tftypes.Type, values map[string]tftypes.Value) tftypes.Value {
	obj := typ.(tftypes.Object)
	attrs := make(map[string]tftypes.Value, len(obj.AttributeTypes))
	for name, attrType := range obj.AttributeTypes {
		if v, ok := values[name]; ok {
			attrs[name] = v
			continue
		}
		attrs[name] = tftypes.NewValue(attrType, nil)
	}
	return tftypes.NewValue(typ, attrs)
}

func configuredAccountDataSource(t *testing.T, dir directory.Client) *AccountDataSource {
	t.Helper()

	d := &AccountDataSource{}
	resp := &datasource.ConfigureResponse{}
	d.Configure(t.Context(), datasource.ConfigureRequest{ProviderData: ldapclient.NewProviderData(dir, nil)}, resp)
	if resp.Diagnostics.HasError() {
		t.Fatalf("Configure failed: %v", resp.Diagnostics)
	}
	return d
}

func configuredAccountStateResource(t *testing.T, dir directory.Client) *AccountStateResource {
	t.Helper()

	r := &AccountStateResource{}
	resp := &resource.ConfigureResponse{}
	r.Configure(t.Context(), resource.ConfigureRequest{ProviderData: ldapclient.NewProviderData(dir, nil)}, resp)
	if resp.Diagnostics.HasError() {
		t.Fatalf("Configure failed: %v", resp.Diagnostics)
	}
	return r
}

package ldap

import (
	"context"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
)

// MockClient implements the Client interface for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) BindWithConfig(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	args := m.Called(ctx, req)
	if result, ok := args.Get(0).(*SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	args := m.Called(ctx, req)
	if result, ok := args.Get(0).(*SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Modify(ctx context.Context, req *ModifyRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockClient) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	args := m.Called(ctx)
	if result, ok := args.Get(0).(*WhoAmIResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) GetBaseDN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Stats() PoolStats {
	args := m.Called()
	if stats, ok := args.Get(0).(PoolStats); ok {
		return stats
	}
	return PoolStats{}
}

const testBaseDN = "DC=example,DC=com"

// newTestDirectory returns an AccountDirectory whose default session is
// backed by client.
func newTestDirectory(client Client) *AccountDirectory {
	config := DefaultConfig()
	config.GroupLookupBatchSize = 2
	sessions := NewSessions(config, &Session{Client: client, BaseDN: testBaseDN}, nil)
	return NewAccountDirectory(sessions, config)
}

// adGUIDBytes is the objectGUID encoding of testGUID.
var adGUIDBytes = []byte{
	0x78, 0x56, 0x34, 0x12,
	0x34, 0x12,
	0x78, 0x56,
	0x9a, 0xbc,
	0xde, 0xf0, 0x12, 0x34, 0x56, 0x78,
}

const testGUID = "12345678-1234-5678-9abc-def012345678"

// S-1-5-21-1-2-3-1104
var testSIDBytes = []byte{
	0x01, 0x05,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
	0x15, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x02, 0x00, 0x00, 0x00,
	0x03, 0x00, 0x00, 0x00,
	0x50, 0x04, 0x00, 0x00,
}

const testSID = "S-1-5-21-1-2-3-1104"

func newAccountEntry(dn string, attrs map[string][]string) *ldap.Entry {
	entry := ldap.NewEntry(dn, attrs)
	entry.Attributes = append(entry.Attributes,
		&ldap.EntryAttribute{Name: "objectGUID", Values: []string{string(adGUIDBytes)}, ByteValues: [][]byte{adGUIDBytes}},
		&ldap.EntryAttribute{Name: "objectSid", Values: []string{string(testSIDBytes)}, ByteValues: [][]byte{testSIDBytes}},
	)
	return entry
}

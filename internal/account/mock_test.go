package account

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

// MockDirectory implements directory.Client for testing.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) LookupByIdentity(ctx context.Context, identity string, opts directory.Options) (*directory.Object, error) {
	args := m.Called(ctx, identity, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Object), args.Error(1)
}

func (m *MockDirectory) LookupByReference(ctx context.Context, ref string, opts directory.Options) (*directory.Object, error) {
	args := m.Called(ctx, ref, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Object), args.Error(1)
}

func (m *MockDirectory) LookupGroupsByReferences(ctx context.Context, refs []string, opts directory.Options) ([]*directory.Object, error) {
	args := m.Called(ctx, refs, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*directory.Object), args.Error(1)
}

func (m *MockDirectory) SetEnabled(ctx context.Context, handle *directory.Object, enabled bool, opts directory.Options) error {
	args := m.Called(ctx, handle, enabled, opts)
	return args.Error(0)
}

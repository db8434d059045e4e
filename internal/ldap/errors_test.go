package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCategory  ErrorCategory
		wantRetryable bool
		wantCode      uint16
	}{
		{
			name:         "invalid credentials",
			err:          ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr")),
			wantCategory: ErrorCategoryAuthentication,
			wantCode:     ldap.LDAPResultInvalidCredentials,
		},
		{
			name:         "insufficient access",
			err:          ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")),
			wantCategory: ErrorCategoryPermission,
			wantCode:     ldap.LDAPResultInsufficientAccessRights,
		},
		{
			name:         "no such object",
			err:          ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("0000208D")),
			wantCategory: ErrorCategoryNotFound,
			wantCode:     ldap.LDAPResultNoSuchObject,
		},
		{
			name:          "busy",
			err:           ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")),
			wantCategory:  ErrorCategoryServer,
			wantRetryable: true,
			wantCode:      ldap.LDAPResultBusy,
		},
		{
			name:          "network",
			err:           ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset")),
			wantCategory:  ErrorCategoryConnection,
			wantRetryable: true,
			wantCode:      ldap.ErrorNetwork,
		},
		{
			name:          "wrapped generic timeout",
			err:           fmt.Errorf("search: %w", errors.New("i/o timeout")),
			wantCategory:  ErrorCategoryConnection,
			wantRetryable: true,
		},
		{
			name:         "generic unknown",
			err:          errors.New("something odd"),
			wantCategory: ErrorCategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ldapErr := NewLDAPError("search", tt.err)
			require.NotNil(t, ldapErr)

			assert.Equal(t, tt.wantCategory, ldapErr.Category)
			assert.Equal(t, tt.wantRetryable, ldapErr.IsRetryable())
			assert.Equal(t, tt.wantCode, ldapErr.LDAPCode)
			assert.ErrorIs(t, ldapErr, tt.err)
			assert.Contains(t, ldapErr.Error(), "LDAP search failed")
		})
	}

	assert.Nil(t, NewLDAPError("search", nil))
}

func TestLDAPError_Error(t *testing.T) {
	err := &LDAPError{
		Operation: "modify",
		LDAPCode:  50,
		Message:   "Insufficient Access Rights",
		ServerMsg: "00002098: SecErr",
		DN:        "CN=Bob,DC=example,DC=com",
	}

	assert.Equal(t,
		"LDAP modify failed (code 50) - Insufficient Access Rights - server: 00002098: SecErr - DN: CN=Bob,DC=example,DC=com",
		err.Error())
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("search", nil))

	t.Run("wraps plain errors", func(t *testing.T) {
		err := WrapError("search", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing")))
		var ldapErr *LDAPError
		require.ErrorAs(t, err, &ldapErr)
		assert.Equal(t, "search", ldapErr.Operation)
	})

	t.Run("keeps existing LDAPError", func(t *testing.T) {
		original := newNotFoundError("lookup_account", "bob")
		err := WrapError("outer", original)
		assert.Same(t, original, err)
		assert.Equal(t, "lookup_account", original.Operation)
	})
}

func TestErrorClassifiers(t *testing.T) {
	notFound := newNotFoundError("lookup_account", "bob")
	assert.True(t, IsNotFoundError(notFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("wrapped: %w", notFound)))
	assert.Contains(t, notFound.Error(), `no object matches "bob"`)

	assert.True(t, IsAuthenticationError(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad"))))
	assert.True(t, IsPermissionError(errors.New("access denied")))
	assert.False(t, IsNotFoundError(nil))
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(NewConnectionError("dial", true, errors.New("refused"))))
	assert.False(t, IsRetryableError(NewConnectionError("dial", false, errors.New("refused"))))
	assert.True(t, IsRetryableError(errors.New("temporary failure in name resolution")))
	assert.False(t, IsRetryableError(errors.New("invalid filter")))
}

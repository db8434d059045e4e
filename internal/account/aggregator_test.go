package account

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func bobObject() *directory.Object {
	lastSet := testNow.Add(-(10*24 + 5) * time.Hour)
	return &directory.Object{
		Name:                 "Bob Smith",
		AccountName:          "bob",
		Title:                "Account Executive",
		Email:                "bob@example.com",
		DistinguishedName:    "CN=Bob,OU=Sales,OU=Corp,DC=example,DC=com",
		ObjectGUID:           "12345678-1234-1234-1234-123456789012",
		Enabled:              true,
		LockedOut:            true,
		PasswordExpired:      false,
		PasswordLastSet:      &lastSet,
		PasswordLastSetRaw:   "133850000000000000",
		ManagerReference:     "CN=Alice,OU=Corp,DC=example,DC=com",
		MembershipReferences: []string{"CN=Sales,OU=Groups,DC=example,DC=com", "CN=VPN,OU=Groups,DC=example,DC=com"},
	}
}

func aliceObject() *directory.Object {
	return &directory.Object{
		Name:              "Alice Jones",
		AccountName:       "alice",
		Title:             "Sales Director",
		DistinguishedName: "CN=Alice,OU=Corp,DC=example,DC=com",
		Enabled:           true,
		ManagerReference:  "CN=Carol,OU=Corp,DC=example,DC=com",
	}
}

func groupObjects() []*directory.Object {
	return []*directory.Object{
		{Name: "Sales", AccountName: "Sales", DistinguishedName: "CN=Sales,OU=Groups,DC=example,DC=com", GroupScope: "global", GroupCategory: "security"},
		{Name: "VPN", AccountName: "VPN", DistinguishedName: "CN=VPN,OU=Groups,DC=example,DC=com", GroupScope: "universal", GroupCategory: "security"},
	}
}

func TestAggregate_FullSuccess(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()

	client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
	client.On("LookupByReference", mock.Anything, bob.ManagerReference, directory.Options{}).Return(aliceObject(), nil)
	client.On("LookupGroupsByReferences", mock.Anything, bob.MembershipReferences, directory.Options{}).Return(groupObjects(), nil)

	record := NewAggregator(client, WithClock(fixedClock)).Aggregate(t.Context(), `EXAMPLE\bob`, Options{})

	require.True(t, record.Exists)
	assert.Empty(t, record.Failures)
	assert.Equal(t, "Bob Smith", record.Name)
	assert.Equal(t, "bob", record.AccountName)
	assert.Equal(t, "Account Executive", record.Title)
	assert.Equal(t, "bob@example.com", record.Email)
	assert.True(t, record.Enabled)
	assert.True(t, record.LockedOut)
	assert.False(t, record.PasswordExpired)
	require.NotNil(t, record.PasswordAgeDays)
	assert.Equal(t, 10, *record.PasswordAgeDays)
	assert.Empty(t, record.PasswordAgeRaw)
	assert.Equal(t, []string{"Sales", "Corp"}, record.OrgUnits)
	assert.Same(t, bob, record.Object)

	require.True(t, record.Manager.Resolved())
	assert.Equal(t, "alice", record.Manager.Record.AccountName)
	assert.Equal(t, []string{"Corp"}, record.Manager.Record.OrgUnits)
	assert.Nil(t, record.Manager.Record.Manager, "manager record must not recurse")
	assert.Nil(t, record.Manager.Record.Groups)

	require.Len(t, record.Groups, 2)
	assert.Equal(t, "Sales", record.Groups[0].Name)
	assert.Equal(t, "universal", record.Groups[1].Scope)

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "LookupByReference", 1)
}

func TestAggregate_PrimaryLookupFails(t *testing.T) {
	client := new(MockDirectory)
	lookupErr := errors.New("no such object")
	client.On("LookupByIdentity", mock.Anything, "ghost", directory.Options{}).Return(nil, lookupErr)

	record := NewAggregator(client, WithClock(fixedClock)).Aggregate(t.Context(), "ghost", Options{})

	assert.False(t, record.Exists)
	require.Len(t, record.Failures, 1)

	var le *LookupError
	require.ErrorAs(t, record.Failures[0], &le)
	assert.Equal(t, PhaseAccount, le.Phase)
	assert.ErrorIs(t, record.Failures[0], lookupErr)

	expected := &Record{Failures: record.Failures}
	assert.Equal(t, expected, record, "all other fields stay at their zero value")

	client.AssertNotCalled(t, "LookupByReference", mock.Anything, mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "LookupGroupsByReferences", mock.Anything, mock.Anything, mock.Anything)
}

func TestAggregate_NilObjectIsLookupFailure(t *testing.T) {
	client := new(MockDirectory)
	client.On("LookupByIdentity", mock.Anything, "ghost", directory.Options{}).Return(nil, nil)

	record := NewAggregator(client).Aggregate(t.Context(), "ghost", Options{})

	assert.False(t, record.Exists)
	require.Len(t, record.Failures, 1)
}

func TestAggregate_ManagerLookupFails(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()
	managerErr := errors.New("insufficient access rights")

	client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
	client.On("LookupByReference", mock.Anything, bob.ManagerReference, directory.Options{}).Return(nil, managerErr)
	client.On("LookupGroupsByReferences", mock.Anything, bob.MembershipReferences, directory.Options{}).Return(groupObjects(), nil)

	record := NewAggregator(client, WithClock(fixedClock)).Aggregate(t.Context(), "bob", Options{})

	require.True(t, record.Exists)
	require.NotNil(t, record.Manager)
	assert.False(t, record.Manager.Resolved())
	assert.Equal(t, bob.ManagerReference, record.Manager.Reference)

	require.Len(t, record.Failures, 1)
	var le *LookupError
	require.ErrorAs(t, record.Failures[0], &le)
	assert.Equal(t, PhaseManager, le.Phase)
	assert.ErrorIs(t, le, managerErr)

	assert.Len(t, record.Groups, 2, "groups are unaffected")
}

func TestAggregate_GroupLookupFails(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()

	client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
	client.On("LookupByReference", mock.Anything, bob.ManagerReference, directory.Options{}).Return(aliceObject(), nil)
	client.On("LookupGroupsByReferences", mock.Anything, bob.MembershipReferences, directory.Options{}).Return(nil, errors.New("timeout"))

	record := NewAggregator(client, WithClock(fixedClock)).Aggregate(t.Context(), "bob", Options{})

	require.True(t, record.Exists)
	assert.Nil(t, record.Groups)
	require.Len(t, record.Failures, 1)

	var le *LookupError
	require.ErrorAs(t, record.Failures[0], &le)
	assert.Equal(t, PhaseGroups, le.Phase)

	assert.True(t, record.Manager.Resolved())
	assert.Equal(t, []string{"Sales", "Corp"}, record.OrgUnits)
	assert.NotNil(t, record.PasswordAgeDays)
}

func TestAggregate_FailuresInEncounterOrder(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()

	client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
	client.On("LookupByReference", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("manager gone"))
	client.On("LookupGroupsByReferences", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("groups gone"))

	record := NewAggregator(client).Aggregate(t.Context(), "bob", Options{})

	require.Len(t, record.Failures, 2)
	assert.Equal(t, PhaseManager, record.Failures[0].(*LookupError).Phase)
	assert.Equal(t, PhaseGroups, record.Failures[1].(*LookupError).Phase)
}

func TestAggregate_NoManagerAttribute(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()
	bob.ManagerReference = ""

	client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
	client.On("LookupGroupsByReferences", mock.Anything, bob.MembershipReferences, directory.Options{}).Return(groupObjects(), nil)

	record := NewAggregator(client).Aggregate(t.Context(), "bob", Options{})

	assert.Nil(t, record.Manager)
	assert.Empty(t, record.Failures)
	client.AssertNotCalled(t, "LookupByReference", mock.Anything, mock.Anything, mock.Anything)
}

func TestAggregate_EscapedDistinguishedName(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()
	bob.DistinguishedName = `CN=Smith\, Bob,OU=Sales,OU=Corp,DC=example,DC=com`
	bob.ManagerReference = ""

	client.On("LookupByIdentity", mock.Anything, bob.DistinguishedName, directory.Options{}).Return(bob, nil)
	client.On("LookupGroupsByReferences", mock.Anything, bob.MembershipReferences, directory.Options{}).Return(groupObjects(), nil)

	record := NewAggregator(client).Aggregate(t.Context(), bob.DistinguishedName, Options{})

	require.True(t, record.Exists)
	assert.Empty(t, record.Failures)
	client.AssertExpectations(t)
}

func TestAggregate_PasswordNeverSet(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"attribute absent", ""},
		{"must change at next logon", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockDirectory)
			bob := bobObject()
			bob.PasswordLastSet = nil
			bob.PasswordLastSetRaw = tt.raw

			client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
			client.On("LookupByReference", mock.Anything, mock.Anything, mock.Anything).Return(aliceObject(), nil)
			client.On("LookupGroupsByReferences", mock.Anything, mock.Anything, mock.Anything).Return(groupObjects(), nil)

			record := NewAggregator(client, WithClock(fixedClock)).Aggregate(t.Context(), "bob", Options{})

			assert.Nil(t, record.PasswordAgeDays, "unknown age must not read as zero days")
			assert.Equal(t, tt.raw, record.PasswordAgeRaw)
		})
	}
}

func TestAggregate_EmptyMembershipYieldsEmptyGroups(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()
	bob.ManagerReference = ""
	bob.MembershipReferences = nil

	client.On("LookupByIdentity", mock.Anything, "bob", directory.Options{}).Return(bob, nil)
	client.On("LookupGroupsByReferences", mock.Anything, []string(nil), directory.Options{}).Return([]*directory.Object{}, nil)

	record := NewAggregator(client).Aggregate(t.Context(), "bob", Options{})

	assert.NotNil(t, record.Groups)
	assert.Empty(t, record.Groups)
}

func TestAggregate_PassesSelectedOptions(t *testing.T) {
	client := new(MockDirectory)
	bob := bobObject()
	cred := &directory.Credential{Username: "svc", Password: "pw"}
	want := directory.Options{Server: "dc2.example.com", Credential: cred}

	client.On("LookupByIdentity", mock.Anything, "bob", want).Return(bob, nil)
	client.On("LookupByReference", mock.Anything, bob.ManagerReference, want).Return(aliceObject(), nil)
	client.On("LookupGroupsByReferences", mock.Anything, bob.MembershipReferences, want).Return(groupObjects(), nil)

	record := NewAggregator(client).Aggregate(t.Context(), "bob", Options{Server: "dc2.example.com", Credential: cred})

	assert.True(t, record.Exists)
	client.AssertExpectations(t)
}

func TestPasswordAgeDays(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		set      time.Time
		expected int
	}{
		{"same instant", now, 0},
		{"just under a day", now.Add(-23 * time.Hour), 0},
		{"exactly one day", now.Add(-24 * time.Hour), 1},
		{"ninety days and change", now.Add(-(90*24 + 1) * time.Hour), 90},
		{"other time zone", now.Add(-48 * time.Hour).In(time.FixedZone("EST", -5*3600)), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, passwordAgeDays(tt.set, now))
		})
	}
}

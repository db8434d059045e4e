package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileTime(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantOK  bool
		wantErr bool
	}{
		{
			name:   "real timestamp",
			value:  "133865136000000000",
			want:   time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "unix epoch plus one tick",
			value:  "116444736000000001",
			want:   time.Unix(0, 100).UTC(),
			wantOK: true,
		},
		{name: "empty", value: ""},
		{name: "zero means never set", value: "0"},
		{name: "max int64 means never", value: "9223372036854775807"},
		{name: "not a number", value: "yesterday", wantErr: true},
		{name: "before unix epoch", value: "100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseFileTime(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseGroupType(t *testing.T) {
	tests := []struct {
		name         string
		groupType    int32
		wantScope    GroupScope
		wantCategory GroupCategory
	}{
		{"global security", GroupTypeFlagGlobal | GroupTypeFlagSecurity, GroupScopeGlobal, GroupCategorySecurity},
		{"domain local security", -2147483644, GroupScopeDomainLocal, GroupCategorySecurity},
		{"universal security", -2147483640, GroupScopeUniversal, GroupCategorySecurity},
		{"global distribution", 2, GroupScopeGlobal, GroupCategoryDistribution},
		{"universal distribution", 8, GroupScopeUniversal, GroupCategoryDistribution},
		{"no scope bits", 0, GroupScopeGlobal, GroupCategoryDistribution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, category := ParseGroupType(tt.groupType)
			assert.Equal(t, tt.wantScope, scope)
			assert.Equal(t, tt.wantCategory, category)
		})
	}
}

func TestParseInt32(t *testing.T) {
	assert.Equal(t, int32(512), parseInt32("512"))
	assert.Equal(t, int32(-2147483646), parseInt32("-2147483646"))
	assert.Equal(t, int32(-2147483646), parseInt32("2147483650"))
	assert.Equal(t, int32(0), parseInt32(""))
	assert.Equal(t, int32(0), parseInt32("abc"))
}

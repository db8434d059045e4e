package account

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/isometry/terraform-provider-adaccount/internal/directory"
)

func TestSelectCallShape(t *testing.T) {
	cred := &directory.Credential{Username: "svc-admin", Password: "secret"}

	tests := []struct {
		name         string
		opts         Options
		expected     CallShape
		expectedOpts directory.Options
	}{
		{
			name:         "neither",
			opts:         Options{},
			expected:     CallDefault,
			expectedOpts: directory.Options{},
		},
		{
			name:         "server only",
			opts:         Options{Server: "dc1.example.com"},
			expected:     CallWithServer,
			expectedOpts: directory.Options{Server: "dc1.example.com"},
		},
		{
			name:         "credential only",
			opts:         Options{Credential: cred},
			expected:     CallWithCredential,
			expectedOpts: directory.Options{Credential: cred},
		},
		{
			name:         "server and credential",
			opts:         Options{Server: "dc1.example.com", Credential: cred},
			expected:     CallWithServerAndCredential,
			expectedOpts: directory.Options{Server: "dc1.example.com", Credential: cred},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape := SelectCallShape(tt.opts)
			assert.Equal(t, tt.expected, shape)
			assert.Equal(t, tt.expectedOpts, shape.Options(tt.opts))
		})
	}
}

func TestCallShapeOptions_DropsValuesOutsideShape(t *testing.T) {
	opts := Options{Server: "dc1.example.com", Credential: &directory.Credential{Username: "u"}}

	assert.Equal(t, directory.Options{}, CallDefault.Options(opts))
	assert.Equal(t, directory.Options{Server: "dc1.example.com"}, CallWithServer.Options(opts))
	assert.Equal(t, directory.Options{Credential: opts.Credential}, CallWithCredential.Options(opts))
}

func TestCallShapeString(t *testing.T) {
	assert.Equal(t, "default", CallDefault.String())
	assert.Equal(t, "server", CallWithServer.String())
	assert.Equal(t, "credential", CallWithCredential.String())
	assert.Equal(t, "server+credential", CallWithServerAndCredential.String())
}

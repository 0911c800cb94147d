package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantUser string
		wantURL  string
	}{
		{"user prefix", "alice@http://host:8081/", "alice", "http://host:8081"},
		{"user in authority", "https://bob@host:8443", "bob", "https://host:8443"},
		{"missing scheme", "carol@host:8081", "carol", "http://host:8081"},
		{"trailing slashes", "dave@http://host//", "dave", "http://host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, url, err := ParseEndpoint(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}

func TestParseEndpointDefaultsToOSUser(t *testing.T) {
	t.Setenv("USER", "fallback")
	user, url, err := ParseEndpoint("http://host:8081")
	require.NoError(t, err)
	assert.NotEmpty(t, user)
	assert.Equal(t, "http://host:8081", url)
}

func TestParseEndpointMalformed(t *testing.T) {
	for _, raw := range []string{"a@b@http://host", "@http://host", "alice@ftp://host", ""} {
		_, _, err := ParseEndpoint(raw)
		assert.ErrorIs(t, err, errdefs.ErrValidation, raw)
	}
	_, _, err := ParseEndpoint("a@b@c")
	assert.ErrorIs(t, err, errdefs.ErrMalformedEndpoint)
}

func TestCredentialProviders(t *testing.T) {
	ctx := context.Background()

	v, err := StaticCredential("pw").Credential(ctx, "u", "x")
	require.NoError(t, err)
	assert.Equal(t, "pw", v)

	t.Setenv("AZKIT_TEST_PASSWORD", "from-env")
	v, err = EnvCredential("AZKIT_TEST_PASSWORD").Credential(ctx, "u", "x")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = EnvCredential("AZKIT_TEST_UNSET_PASSWORD").Credential(ctx, "u", "x")
	assert.ErrorIs(t, err, errdefs.ErrAuthentication)

	chain := Chain{EnvCredential("AZKIT_TEST_UNSET_PASSWORD"), nil, StaticCredential("last")}
	v, err = chain.Credential(ctx, "u", "x")
	require.NoError(t, err)
	assert.Equal(t, "last", v)

	_, err = Chain{}.Credential(ctx, "u", "x")
	assert.ErrorIs(t, err, errdefs.ErrAuthentication)
}

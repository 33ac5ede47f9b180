package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallenge(t *testing.T) {
	t.Parallel()

	header := `Bearer realm="https://auth.docker.io/token",service="registry.docker.io",scope="repository:library/alpine:pull"`
	authURL, scope, err := ParseChallenge(header)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.docker.io/token?service=registry.docker.io&scope=repository:library/alpine:pull", authURL)
	assert.Equal(t, "repository:library/alpine:pull", scope)
}

func TestParseChallengeUnquoted(t *testing.T) {
	t.Parallel()

	authURL, scope, err := ParseChallenge(`Bearer realm=https://auth.ex/token,service=reg,scope=repository:x:pull`)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.ex/token?service=reg&scope=repository:x:pull", authURL)
	assert.Equal(t, "repository:x:pull", scope)
}

func TestParseChallengeScopeNotEncoded(t *testing.T) {
	t.Parallel()

	// Registries expect the scope back with its colons and slashes
	// verbatim; the auth URL must not be escaped.
	authURL, _, err := ParseChallenge(`Bearer realm="https://auth.ex/token",service="reg",scope="repository:a/b/c:pull,push"`)
	require.NoError(t, err)
	assert.Contains(t, authURL, "scope=repository:a/b/c:pull")
}

func TestParseChallengeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", ErrNoChallenge},
		{"basic scheme", `Basic realm="reg"`, ErrNotBearer},
		{"missing realm", `Bearer service="reg",scope="repository:x:pull"`, ErrChallengeIncomplete},
		{"missing service", `Bearer realm="https://auth.ex/token",scope="repository:x:pull"`, ErrChallengeIncomplete},
		{"missing scope", `Bearer realm="https://auth.ex/token",service="reg"`, ErrChallengeIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseChallenge(tt.header)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

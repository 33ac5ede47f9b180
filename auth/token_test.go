package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "expected basic auth")
		assert.Equal(t, "alice", user)
		assert.Equal(t, "s3cret", pass)
		_, _ = w.Write([]byte(`{"token":"T1"}`))
	}))
	t.Cleanup(server.Close)

	token, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "T1", token)
}

func TestFetchTokenAnonymous(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "anonymous request must not carry auth")
		_, _ = w.Write([]byte(`{"token":"anon"}`))
	}))
	t.Cleanup(server.Close)

	token, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{})
	require.NoError(t, err)
	assert.Equal(t, "anon", token)
}

func TestFetchTokenAccessTokenFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"T2"}`))
	}))
	t.Cleanup(server.Close)

	token, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{})
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}

func TestFetchTokenDenied(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	_, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{Username: "alice"})
	assert.ErrorIs(t, err, ErrDenied)
}

func TestFetchTokenMalformedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(server.Close)

	_, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{})
	assert.ErrorIs(t, err, ErrDenied)
}

func TestFetchTokenEmptyDocument(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	_, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{})
	assert.ErrorIs(t, err, ErrDenied)
}

func TestFetchTokenBodyCap(t *testing.T) {
	t.Parallel()

	// A response larger than the 16 KiB cap is truncated and fails to
	// parse rather than being read without bound.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":"` + strings.Repeat("x", maxTokenBody) + `"}`))
	}))
	t.Cleanup(server.Close)

	_, err := FetchToken(context.Background(), server.Client(), server.URL, Credential{})
	assert.ErrorIs(t, err, ErrDenied)
}

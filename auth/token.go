package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrDenied is returned when the token endpoint rejects the request or
// answers with something other than a token document.
var ErrDenied = errors.New("auth: authorization denied")

// maxTokenBody caps how much of the token endpoint response is read.
const maxTokenBody = 16 * 1024

// Credential is a username/password pair for a registry.
type Credential struct {
	Username string
	Password string
}

// CredentialFunc supplies the credential to use for a blob URL.
// Implementations may prompt the user; callers rate-limit invocations
// through the token cache, so a prompt fires once per scope miss.
type CredentialFunc func(blobURL string) (Credential, error)

// Anonymous is a CredentialFunc that always returns empty credentials.
func Anonymous(string) (Credential, error) {
	return Credential{}, nil
}

// tokenResponse is the token document returned by registry auth
// endpoints. Some services use access_token instead of token.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// FetchToken requests a bearer token from authURL, authenticating with
// HTTP Basic when the credential carries a username. The client must
// not follow redirects; no retries are attempted.
func FetchToken(ctx context.Context, client *http.Client, authURL string, cred Credential) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", fmt.Errorf("auth: build token request: %w", err)
	}
	if cred.Username != "" {
		req.SetBasicAuth(cred.Username, cred.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: token request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %s", ErrDenied, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return "", fmt.Errorf("auth: read token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: parse token response: %v", ErrDenied, err)
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("%w: response carries no token", ErrDenied)
	}
	return token, nil
}

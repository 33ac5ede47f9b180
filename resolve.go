package registryfs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/meigma/registryfs/auth"
)

// urlMode tags how a blob URL is served.
type urlMode int

const (
	// modeSelf: the registry serves the blob itself; fetches go to the
	// original URL with the recorded Authorization value, if any.
	modeSelf urlMode = iota

	// modeRedirect: the registry redirects to a pre-signed location;
	// fetches go there with no Authorization header.
	modeRedirect
)

// resolvedURL is the cached outcome of probing a blob URL. info holds
// the redirect location for modeRedirect and the Authorization header
// value (possibly empty) for modeSelf.
type resolvedURL struct {
	mode urlMode
	info string
}

// resolveURL probes a blob URL and determines how subsequent ranged
// fetches must be issued: directly with a bearer token, or against a
// redirect target without auth. Tokens are shared across blob URLs
// through the scope-keyed token cache; the credential callback runs
// only inside token cache misses.
func (f *FS) resolveURL(ctx context.Context, blobURL string) (resolvedURL, error) {
	authURL, scope, err := f.probeChallenge(ctx, blobURL)
	if err != nil {
		return resolvedURL{}, err
	}
	if scope == "" {
		// No challenge: the registry accepts unauthenticated fetches.
		return resolvedURL{mode: modeSelf}, nil
	}

	tok, err := f.tokens.Acquire(scope, func() (string, error) {
		cred, err := f.creds(blobURL)
		if err != nil {
			return "", fmt.Errorf("%w: credentials: %w", ErrAuthDenied, err)
		}
		token, err := auth.FetchToken(ctx, f.noRedirect, authURL, cred)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAuthDenied, err)
		}
		return token, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return resolvedURL{}, deadlineErr(ctx.Err())
		}
		return resolvedURL{}, err
	}
	token := tok.Value()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		tok.Release()
		return resolvedURL{}, fmt.Errorf("registryfs: build blob request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.noRedirect.Do(req)
	if err != nil {
		tok.Invalidate()
		if ctx.Err() != nil {
			return resolvedURL{}, deadlineErr(ctx.Err())
		}
		return resolvedURL{}, fmt.Errorf("registryfs: authenticated probe: %w", err)
	}
	drainClose(resp.Body)

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		tok.Release()
		return resolvedURL{mode: modeRedirect, info: resp.Header.Get("Location")}, nil

	case resp.StatusCode == http.StatusOK:
		tok.Release()
		info := ""
		if token != "" {
			info = "Bearer " + token
		}
		return resolvedURL{mode: modeSelf, info: info}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The cached token no longer opens this scope. Drop it so the
		// next miss re-runs the credential callback.
		f.log().Warn("registry token stale, refreshing credentials on next attempt", "url", blobURL)
		tok.Invalidate()
		return resolvedURL{}, &StatusError{URL: blobURL, StatusCode: resp.StatusCode}

	default:
		tok.Invalidate()
		return resolvedURL{}, &StatusError{URL: blobURL, StatusCode: resp.StatusCode}
	}
}

// probeChallenge issues the bytes=0-0 probe and parses the bearer
// challenge, if any. An empty returned scope means the registry did not
// challenge and fetches may proceed unauthenticated.
func (f *FS) probeChallenge(ctx context.Context, blobURL string) (authURL, scope string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("registryfs: build probe request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := f.noRedirect.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", deadlineErr(ctx.Err())
		}
		return "", "", fmt.Errorf("%w: probe %s: %w", ErrNotFound, blobURL, err)
	}
	drainClose(resp.Body)

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return "", "", nil
	}

	authURL, scope, err = auth.ParseChallenge(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return "", "", fmt.Errorf("registryfs: %w", err)
	}
	return authURL, scope, nil
}

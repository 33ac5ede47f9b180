// Package auth implements the Docker registry token authentication
// flow: parsing Bearer challenges from WWW-Authenticate headers and
// exchanging credentials for bearer tokens at the challenge realm.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrNoChallenge is returned when the response carries no
	// WWW-Authenticate header.
	ErrNoChallenge = errors.New("auth: no challenge header in response")

	// ErrNotBearer is returned for challenge schemes other than Bearer.
	ErrNotBearer = errors.New("auth: challenge is not bearer auth")

	// ErrChallengeIncomplete is returned when a Bearer challenge lacks
	// realm, service, or scope.
	ErrChallengeIncomplete = errors.New("auth: challenge missing required parameters")
)

const bearerPrefix = "Bearer "

// ParseChallenge parses the value of a WWW-Authenticate header into the
// token endpoint URL and the access scope it demands.
//
// The returned URL is realm?service=...&scope=... with the parameter
// values concatenated verbatim. Registries hand out scopes containing
// colons and slashes and expect them back unencoded, so no URL escaping
// is applied.
func ParseChallenge(header string) (authURL, scope string, err error) {
	if header == "" {
		return "", "", ErrNoChallenge
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", "", fmt.Errorf("%w: %q", ErrNotBearer, header)
	}

	params := parseParams(strings.TrimPrefix(header, bearerPrefix))
	realm, okRealm := params["realm"]
	service, okService := params["service"]
	scope, okScope := params["scope"]
	if !okRealm || !okService || !okScope {
		return "", "", fmt.Errorf("%w: %q", ErrChallengeIncomplete, header)
	}

	return realm + "?service=" + service + "&scope=" + scope, scope, nil
}

// parseParams splits a challenge parameter list on commas into a
// key=value map, trimming surrounding whitespace and double quotes.
func parseParams(s string) map[string]string {
	params := make(map[string]string)
	for _, token := range strings.Split(s, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(token), "=")
		if !found {
			continue
		}
		params[key] = strings.Trim(value, `"`)
	}
	return params
}

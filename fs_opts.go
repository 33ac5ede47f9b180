package registryfs

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/meigma/registryfs/auth"
)

// Option configures an FS.
type Option func(*FS) error

// WithEndpoint sets the registry endpoint (e.g.
// "https://registry-1.docker.io") that fs.FS paths are resolved
// against. Without it, only OpenURL is available.
func WithEndpoint(endpoint string) Option {
	return func(f *FS) error {
		u, err := neturl.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("registryfs: parse endpoint: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("registryfs: endpoint %q must include scheme and host", endpoint)
		}
		f.endpoint = strings.TrimSuffix(endpoint, "/")
		return nil
	}
}

// WithCredentials sets the callback that supplies a username and
// password for a blob URL. It is invoked only on token cache misses,
// so prompting implementations fire at most once per challenge scope
// within the token TTL.
func WithCredentials(fn auth.CredentialFunc) Option {
	return func(f *FS) error {
		if fn != nil {
			f.creds = fn
		}
		return nil
	}
}

// WithTimeout bounds every filesystem operation, including all retries
// and token exchanges it performs. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(f *FS) error {
		f.timeout = d
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used for all requests. The
// client's transport is shared with an internal non-redirecting
// variant, so transport-level settings (proxy, TLS, pooling) apply to
// probes and token exchanges as well.
func WithHTTPClient(client *http.Client) Option {
	return func(f *FS) error {
		f.client = client
		return nil
	}
}

// WithCACert adds the PEM bundle at path to the trusted roots of the
// default transport. Ignored when WithHTTPClient is also given.
func WithCACert(path string) Option {
	return func(f *FS) error {
		f.caPath = path
		return nil
	}
}

// WithAccelerateAddress sets the initial peer-to-peer accelerator
// prefix; see SetAccelerateAddress.
func WithAccelerateAddress(addr string) Option {
	return func(f *FS) error {
		f.accelerate = addr
		return nil
	}
}

// WithLogger sets a logger for the filesystem.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(f *FS) error {
		f.logger = logger
		return nil
	}
}

// newTransport clones the default transport, loading an extra CA
// bundle when one is configured.
func newTransport(caPath string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caPath == "" {
		return transport, nil
	}

	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("registryfs: read CA bundle: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("registryfs: no certificates found in %s", caPath)
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	transport.TLSClientConfig.RootCAs = pool
	return transport, nil
}

package registryfs

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/registryfs/auth"
	"github.com/meigma/registryfs/internal/refcache"
)

// Cache lifetimes and fetch retry behavior. The TTLs bound how long a
// token, resolution, or size is reused before the registry is asked
// again.
const (
	tokenTTL    = 30 * time.Second
	urlInfoTTL  = 300 * time.Second
	blobSizeTTL = 300 * time.Second

	readAttempts = 3
	retryDelay   = time.Millisecond
)

// FS is a read-only filesystem over the blobs of a container image
// registry. It owns the HTTP clients, the three metadata caches, and
// the credential callback; File handles opened from it borrow a
// reference back to it, so an FS must outlive its files.
//
// FS implements fs.FS and fs.StatFS for paths of the form
// v2/<repository>/blobs/<digest> when an endpoint is configured.
type FS struct {
	// client follows redirects and performs the data fetches;
	// noRedirect shares its transport and serves the probe, classify,
	// and token requests, which must observe redirects themselves.
	client     *http.Client
	noRedirect *http.Client

	creds    auth.CredentialFunc
	timeout  time.Duration
	endpoint string // scheme://host[:port], empty unless WithEndpoint
	caPath   string
	logger   *slog.Logger

	tokens *refcache.Cache[string]
	urls   *refcache.Cache[resolvedURL]

	sizes      *ttlcache.Cache[string, int64]
	sizeLoader ttlcache.Loader[string, int64]

	// accelerate is read on every fetch and swapped by
	// SetAccelerateAddress; a stale read merely routes one more fetch
	// through the previous prefix.
	accelMu    sync.RWMutex
	accelerate string
}

// Interface compliance.
var (
	_ fs.FS     = (*FS)(nil)
	_ fs.StatFS = (*FS)(nil)
)

// New creates a registry filesystem with the given options.
//
// Without WithCredentials, all access is anonymous. Close must be
// called to release the size cache's expiry worker.
func New(opts ...Option) (*FS, error) {
	f := &FS{
		creds: auth.Anonymous,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}

	if f.client == nil {
		transport, err := newTransport(f.caPath)
		if err != nil {
			return nil, err
		}
		f.client = &http.Client{Transport: transport}
	}
	f.noRedirect = &http.Client{
		Transport: f.client.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	f.tokens = refcache.New[string](tokenTTL)
	f.urls = refcache.New[resolvedURL](urlInfoTTL)

	f.sizes = ttlcache.New(
		ttlcache.WithTTL[string, int64](blobSizeTTL),
		ttlcache.WithDisableTouchOnHit[string, int64](),
	)
	f.sizeLoader = ttlcache.NewSuppressedLoader(
		ttlcache.LoaderFunc[string, int64](f.loadSize), new(singleflight.Group),
	)
	go f.sizes.Start()

	return f, nil
}

// log returns the configured logger or a discard logger.
func (f *FS) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

// Close stops the size cache's expiry worker. Files opened from the
// filesystem stay usable; Close only releases background resources.
func (f *FS) Close() error {
	f.sizes.Stop()
	return nil
}

// Open opens the blob at a path of the form
// v2/<repository>/blobs/<digest> against the configured endpoint. The
// blob's size is fetched immediately, so Open fails on blobs that are
// missing or inaccessible.
func (f *FS) Open(name string) (fs.File, error) {
	url, err := f.blobURL(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	file := newFile(f, name, url)
	if err := file.ensureSize(); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return file, nil
}

// OpenFile opens a blob with open(2)-style flags. Only read-only
// access is supported; any write flag reports not-implemented.
func (f *FS) OpenFile(name string, flag int) (fs.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, &fs.PathError{Op: "open", Path: name, Err: ErrNotImplemented}
	}
	return f.Open(name)
}

// OpenURL opens a blob by its fully-qualified URL. The URL is treated
// as opaque; no path validation is performed.
func (f *FS) OpenURL(url string) (*File, error) {
	file := newFile(f, "", url)
	if err := file.ensureSize(); err != nil {
		return nil, err
	}
	return file, nil
}

// Stat reports the blob's size from the size cache, probing the
// registry on a miss. Concurrent misses for the same blob share one
// probe. The returned info describes a regular read-only file.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	url, err := f.blobURL(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	item := f.sizes.Get(url, ttlcache.WithLoader[string, int64](f.sizeLoader))
	if item == nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: ErrNotFound}
	}
	return fileInfo{name: baseName(name), size: item.Value()}, nil
}

// loadSize is the size cache's loader: it opens a throwaway handle for
// the blob and discovers its size. Failures are not cached.
func (f *FS) loadSize(c *ttlcache.Cache[string, int64], url string) *ttlcache.Item[string, int64] {
	file := newFile(f, "", url)
	if err := file.ensureSize(); err != nil {
		f.log().Debug("blob size probe failed", "url", url, "error", err)
		return nil
	}
	return c.Set(url, file.size, ttlcache.DefaultTTL)
}

// storeSize records a discovered blob size, keeping Stat answers
// consistent with sizes learned through open file handles.
func (f *FS) storeSize(url string, size int64) {
	f.sizes.Set(url, size, ttlcache.DefaultTTL)
}

// SetAccelerateAddress routes subsequent fetches through the given
// peer-to-peer accelerator prefix. The empty string disables
// acceleration. In-flight fetches may still use the previous value.
func (f *FS) SetAccelerateAddress(addr string) {
	f.accelMu.Lock()
	f.accelerate = addr
	f.accelMu.Unlock()
}

// AccelerateAddress returns the accelerator prefix currently in effect.
func (f *FS) AccelerateAddress() string {
	f.accelMu.RLock()
	defer f.accelMu.RUnlock()
	return f.accelerate
}

// opContext derives the deadline budget shared by every sub-operation
// of one filesystem call. A zero timeout means no deadline.
func (f *FS) opContext() (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), f.timeout)
}

// --- Mutating operations ---
//
// The registry view is read-only; these exist so the type can stand in
// for a full filesystem facade. None of them alters any state.

// Create is not supported.
func (f *FS) Create(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "create", Path: name, Err: ErrNotImplemented}
}

// Mkdir is not supported; blobs have no directory structure.
func (f *FS) Mkdir(name string, _ fs.FileMode) error {
	return &fs.PathError{Op: "mkdir", Path: name, Err: ErrNotImplemented}
}

// Remove is not supported.
func (f *FS) Remove(name string) error {
	return &fs.PathError{Op: "remove", Path: name, Err: ErrNotImplemented}
}

// Rename is not supported.
func (f *FS) Rename(oldname, _ string) error {
	return &fs.PathError{Op: "rename", Path: oldname, Err: ErrNotImplemented}
}

// Chmod is not supported.
func (f *FS) Chmod(name string, _ fs.FileMode) error {
	return &fs.PathError{Op: "chmod", Path: name, Err: ErrNotImplemented}
}

// Chtimes is not supported.
func (f *FS) Chtimes(name string, _, _ time.Time) error {
	return &fs.PathError{Op: "chtimes", Path: name, Err: ErrNotImplemented}
}

// Symlink is not supported.
func (f *FS) Symlink(oldname, _ string) error {
	return &fs.PathError{Op: "symlink", Path: oldname, Err: ErrNotImplemented}
}

// Readlink is not supported.
func (f *FS) Readlink(name string) (string, error) {
	return "", &fs.PathError{Op: "readlink", Path: name, Err: ErrNotImplemented}
}

// Truncate is not supported.
func (f *FS) Truncate(name string, _ int64) error {
	return &fs.PathError{Op: "truncate", Path: name, Err: ErrNotImplemented}
}

// drainClose discards any unread body bytes so the underlying
// connection can be reused, then closes the body.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

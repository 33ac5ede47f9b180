// Package registryfs exposes container image registry blobs (the OCI /
// Docker Registry v2 HTTP API) as a read-only random-access file
// abstraction.
//
// Every file is a blob addressed by a registry path such as
// v2/library/alpine/blobs/sha256:..., and reads translate into
// authenticated, possibly redirected, ranged HTTP GET requests against
// the remote registry. Three metadata caches keep that cheap: blob
// sizes, bearer tokens keyed by challenge scope, and per-URL fetch
// resolutions (redirect target versus direct serving with a token).
// Blob contents are never cached.
//
// # Quick Start
//
// Open a blob through the fs.FS view of a registry:
//
//	fsys, err := registryfs.New(
//	    registryfs.WithEndpoint("https://registry-1.docker.io"),
//	    registryfs.WithCredentials(creds),
//	)
//	if err != nil {
//	    return err
//	}
//	defer fsys.Close()
//
//	f, err := fsys.Open("v2/library/alpine/blobs/sha256:abc...")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	buf := make([]byte, 4096)
//	n, err := f.(io.ReaderAt).ReadAt(buf, 1024)
//
// OpenURL accepts a fully-qualified blob URL instead, skipping the
// endpoint configuration and path validation.
//
// # Acceleration
//
// SetAccelerateAddress routes fetches through a peer-to-peer proxy by
// prefixing the effective URL; the proxy is responsible for parsing the
// original URL back out of the request path.
//
// The filesystem is read-only. Mutating operations exist on the API
// surface for facade completeness and report not-implemented errors.
package registryfs

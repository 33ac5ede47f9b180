package registryfs

import (
	"fmt"
	"io/fs"
	neturl "net/url"
	"strings"

	"github.com/opencontainers/go-digest"
	"oras.land/oras-go/v2/registry"
)

// blobURL resolves an fs.FS path against the configured endpoint,
// validating the v2/<repository>/blobs/<digest> shape. OpenURL bypasses
// this and treats URLs as opaque.
func (f *FS) blobURL(name string) (string, error) {
	if f.endpoint == "" {
		return "", ErrNoEndpoint
	}
	if !fs.ValidPath(name) {
		return "", fs.ErrInvalid
	}
	repo, dgst, err := splitBlobPath(name)
	if err != nil {
		return "", err
	}

	u, _ := neturl.Parse(f.endpoint)
	ref := registry.Reference{Registry: u.Host, Repository: repo}
	if err := ref.ValidateRepository(); err != nil {
		return "", fmt.Errorf("invalid repository %q: %w", repo, err)
	}
	if err := dgst.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", dgst, err)
	}

	return f.endpoint + "/" + name, nil
}

// splitBlobPath splits a path of the form v2/<repository>/blobs/<digest>.
// The repository segment may itself contain slashes.
func splitBlobPath(name string) (string, digest.Digest, error) {
	parts := strings.Split(name, "/")
	if len(parts) < 4 || parts[0] != "v2" || parts[len(parts)-2] != "blobs" {
		return "", "", fmt.Errorf("path is not of the form v2/<repository>/blobs/<digest>: %w", fs.ErrInvalid)
	}
	repo := strings.Join(parts[1:len(parts)-2], "/")
	return repo, digest.Digest(parts[len(parts)-1]), nil
}

// baseName returns the final path element, which for a blob path is
// its digest.
func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

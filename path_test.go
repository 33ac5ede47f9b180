package registryfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBlobPath(t *testing.T) {
	t.Parallel()

	repo, dgst, err := splitBlobPath("v2/library/alpine/blobs/sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "library/alpine", repo)
	assert.Equal(t, "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", dgst.String())

	repo, _, err = splitBlobPath("v2/deep/nested/repo/name/blobs/sha256:bb")
	require.NoError(t, err)
	assert.Equal(t, "deep/nested/repo/name", repo)

	for _, name := range []string{
		"library/alpine/blobs/sha256:aa",
		"v2/library/alpine/manifests/latest",
		"v2/blobs/sha256:aa",
		"v2",
		"",
	} {
		_, _, err := splitBlobPath(name)
		assert.Error(t, err, "path %q must be rejected", name)
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sha256:aa", baseName("v2/x/blobs/sha256:aa"))
	assert.Equal(t, "plain", baseName("plain"))
}

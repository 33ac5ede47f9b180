package registryfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"
)

// File is a read-only random-access handle to a registry blob. It
// holds a non-owning reference to the filesystem it was opened from;
// the filesystem must outlive the file.
//
// Read and Seek maintain a cursor for fs.File compatibility; ReadAt is
// stateless. A File is not safe for concurrent use.
type File struct {
	fsys   *FS
	name   string // fs path, or "" when opened by URL
	url    string
	size   int64 // -1 until discovered
	cursor int64
	closed bool
}

// Interface compliance.
var (
	_ fs.File     = (*File)(nil)
	_ io.ReaderAt = (*File)(nil)
	_ io.Seeker   = (*File)(nil)
)

func newFile(fsys *FS, name, url string) *File {
	return &File{fsys: fsys, name: name, url: url, size: -1}
}

// FS returns the filesystem this file was opened from.
func (f *File) FS() *FS {
	return f.fsys
}

// URL returns the blob URL this file reads from.
func (f *File) URL() string {
	return f.url
}

// Stat reports the blob as a regular read-only file. The size is
// discovered on first use and cached on the handle and in the
// filesystem's size cache.
func (f *File) Stat() (fs.FileInfo, error) {
	if err := f.ensureSize(); err != nil {
		return nil, err
	}
	return fileInfo{name: f.infoName(), size: f.size}, nil
}

// Size returns the blob's size, discovering it if necessary.
func (f *File) Size() (int64, error) {
	if err := f.ensureSize(); err != nil {
		return 0, err
	}
	return f.size, nil
}

// ReadAt reads len(p) bytes at offset off. Requests are clipped to the
// blob size; reads clipped at EOF return io.EOF alongside the bytes
// read. Transient fetch failures are retried under the filesystem
// timeout, and a 401/403 along the way invalidates the cached
// resolution so the retry re-authenticates from scratch.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("registryfs: read at %d: negative offset", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := f.ensureSize(); err != nil {
		return 0, err
	}
	if off >= f.size {
		return 0, io.EOF
	}

	count := int64(len(p))
	expected := len(p)
	if off+count > f.size {
		count = f.size - off
		expected = int(count)
	}

	ctx, cancel := f.fsys.opContext()
	defer cancel()

	resp, err := f.fetchRetry(ctx, off, count)
	if err != nil {
		return 0, err
	}
	defer drainClose(resp.Body)

	n, err := io.ReadFull(resp.Body, p[:expected])
	if err != nil {
		return n, err
	}
	if expected < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Read reads from the file cursor.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.cursor)
	f.cursor += int64(n)
	return n, err
}

// Seek sets the cursor for subsequent Read calls.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.cursor
	case io.SeekEnd:
		if err := f.ensureSize(); err != nil {
			return 0, err
		}
		offset += f.size
	default:
		return 0, fmt.Errorf("registryfs: seek: invalid whence %d", whence)
	}
	if offset < 0 {
		return 0, fmt.Errorf("registryfs: seek: negative position %d", offset)
	}
	f.cursor = offset
	return offset, nil
}

// Close marks the file closed. No network state is held per handle.
func (f *File) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	return nil
}

// ensureSize discovers the blob size on first use via a one-byte
// ranged fetch, recording it on the handle and in the filesystem's
// size cache.
func (f *File) ensureSize() error {
	if f.size >= 0 {
		return nil
	}

	ctx, cancel := f.fsys.opContext()
	defer cancel()

	attempts := readAttempts
	for {
		resp, err := f.fsys.getData(ctx, f.url, 0, 1)
		if err == nil {
			size, err := resourceSize(resp)
			drainClose(resp.Body)
			if err != nil {
				return err
			}
			f.size = size
			f.fsys.storeSize(f.url, size)
			return nil
		}

		if ctx.Err() != nil {
			return deadlineErr(ctx.Err())
		}
		attempts--
		if attempts == 0 {
			var se *StatusError
			if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
				return fmt.Errorf("%w: %w", ErrAuthDenied, err)
			}
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		f.fsys.log().Debug("size probe failed, retrying", "url", f.url, "error", err)
		if !sleepRetry(ctx) {
			return deadlineErr(ctx.Err())
		}
	}
}

// fetchRetry issues the ranged fetch with the file's retry policy:
// readAttempts attempts separated by retryDelay, all bounded by ctx.
// Non-2xx statuses have already invalidated the URL resolution by the
// time they surface here, so a retry re-resolves.
func (f *File) fetchRetry(ctx context.Context, off, count int64) (*http.Response, error) {
	attempts := readAttempts
	for {
		f.fsys.log().Debug("pulling blob from registry", "url", f.url, "offset", off, "count", count)
		resp, err := f.fsys.getData(ctx, f.url, off, count)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, deadlineErr(ctx.Err())
		}
		attempts--
		if attempts == 0 {
			var se *StatusError
			if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
				return nil, fmt.Errorf("%w: %w", ErrAuthDenied, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		f.fsys.log().Warn("blob fetch failed, retrying", "url", f.url, "offset", off, "error", err)
		if !sleepRetry(ctx) {
			return nil, deadlineErr(ctx.Err())
		}
	}
}

// sleepRetry pauses between attempts, reporting false when the
// deadline fires first.
func sleepRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(retryDelay):
		return true
	}
}

// infoName returns the name reported by Stat: the digest component for
// path-opened files, the last URL segment otherwise.
func (f *File) infoName() string {
	if f.name != "" {
		return baseName(f.name)
	}
	return baseName(f.url)
}

// fileInfo describes a blob as a regular read-only file.
type fileInfo struct {
	name string
	size int64
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }

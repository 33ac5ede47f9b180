package registryfs

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// getData issues a ranged GET for [off, off+count) of a blob. The
// per-URL resolution is acquired from the URL-info cache (resolving on
// a miss), released on 200/206, and invalidated on anything else so the
// next fetch rebuilds it from a fresh probe.
//
// The caller owns the returned response and must read and close its
// body; bodies stream and are never buffered here.
func (f *FS) getData(ctx context.Context, blobURL string, off, count int64) (*http.Response, error) {
	h, err := f.urls.Acquire(blobURL, func() (resolvedURL, error) {
		return f.resolveURL(ctx, blobURL)
	})
	if err != nil {
		return nil, err
	}
	info := h.Value()

	target := blobURL
	if info.mode == modeRedirect {
		target = info.info
	}
	if accel := f.AccelerateAddress(); accel != "" {
		// Literal concatenation: the accelerator parses the original
		// URL back out of its request path.
		target = accel + "/" + target
		f.log().Debug("fetching through accelerator", "url", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		h.Release()
		return nil, fmt.Errorf("registryfs: build fetch request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+count-1))
	if info.mode == modeSelf && info.info != "" {
		req.Header.Set("Authorization", info.info)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		h.Invalidate()
		if ctx.Err() != nil {
			return nil, deadlineErr(ctx.Err())
		}
		return nil, fmt.Errorf("registryfs: fetch %s: %w", blobURL, err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		h.Release()
		return resp, nil
	}

	drainClose(resp.Body)
	h.Invalidate()
	return nil, &StatusError{URL: blobURL, StatusCode: resp.StatusCode}
}

// resourceSize extracts the blob's total size from a ranged response:
// the Content-Range total for 206, the Content-Length for 200.
func resourceSize(resp *http.Response) (int64, error) {
	if resp.StatusCode == http.StatusPartialContent {
		return parseContentRangeTotal(resp.Header.Get("Content-Range"))
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("registryfs: response declares no content length")
	}
	return resp.ContentLength, nil
}

// parseContentRangeTotal parses the total component of a Content-Range
// header, e.g. "bytes 0-0/1234" -> 1234.
func parseContentRangeTotal(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("registryfs: malformed Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("registryfs: Content-Range %q carries no total", value)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("registryfs: malformed Content-Range total %q", total)
	}
	return n, nil
}

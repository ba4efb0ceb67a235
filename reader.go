package mkvsubs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// probeSize is the first range request, large enough to cover the EBML
	// header, the SeekHead and usually the whole Tracks element.
	probeSize = 256 << 10

	// minReadAhead is the smallest range a cache miss fetches. The block
	// fetcher coalesces its own reads, so a single read-ahead line is enough.
	minReadAhead = 32 << 10
)

// Doer issues HTTP requests. *http.Client satisfies it; tests and callers
// with custom transports inject their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Stats is a snapshot of the reader's transfer counters.
type Stats struct {
	BytesDownloaded int64
	RequestCount    int64
}

// RangeReader is a seekable byte view over a remote resource, backed by HTTP
// Range requests and a single read-ahead cache line.
//
// If the server turns out not to support Range requests and full download was
// opted into, the whole body is kept in memory and reads become slices of it.
type RangeReader struct {
	url     string
	client  Doer
	headers map[string]string
	log     *zap.Logger

	size int64
	full []byte // non-nil after the full-download fallback

	mu      sync.Mutex // guards the cache line
	lineOff int64
	line    []byte

	bytesDownloaded atomic.Int64
	requestCount    atomic.Int64
}

// NewRangeReader probes url with a range request for the first 256 KiB and
// returns a reader over it. A 206 reply confirms Range support and yields the
// total size from Content-Range. A 200 reply retains the full body when
// opts.AllowFullDownload is set and fails with RangeNotSupportedError
// otherwise.
func NewRangeReader(ctx context.Context, url string, opts *Options) (*RangeReader, error) {
	if opts == nil {
		opts = &Options{}
	}

	r := &RangeReader{
		url:     url,
		client:  opts.httpClient(),
		headers: opts.Headers,
		log:     opts.logger(),
	}

	resp, body, err := r.request(ctx, 0, probeSize)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		size, errParse := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if errParse != nil {
			return nil, errParse
		}
		r.size = size
		r.lineOff = 0
		r.line = body
		r.log.Debug("range support confirmed",
			zap.String("url", url),
			zap.Int64("size", size))

	case http.StatusOK:
		if !opts.AllowFullDownload {
			return nil, &RangeNotSupportedError{URL: url}
		}
		// The probe already consumed the whole body.
		r.full = body
		r.size = int64(len(body))
		r.log.Debug("range not supported, downloaded whole file",
			zap.String("url", url),
			zap.Int64("size", r.size))

	default:
		return nil, &TransportError{Status: resp.StatusCode, Offset: 0, Length: probeSize}
	}

	return r, nil
}

// Size returns the total size of the remote resource in bytes.
func (r *RangeReader) Size() int64 {
	return r.size
}

// Stats returns the transfer counters accumulated so far.
func (r *RangeReader) Stats() Stats {
	return Stats{
		BytesDownloaded: r.bytesDownloaded.Load(),
		RequestCount:    r.requestCount.Load(),
	}
}

// ReadAt returns up to length bytes starting at off. Near the end of the file
// the result may be shorter than requested; callers sizing reads from element
// headers treat a short read as truncation and retry larger if needed.
func (r *RangeReader) ReadAt(ctx context.Context, off, length int64) ([]byte, error) {
	if length <= 0 || off >= r.size {
		return nil, nil
	}
	if off+length > r.size {
		length = r.size - off
	}

	if r.full != nil {
		out := make([]byte, length)
		copy(out, r.full[off:off+length])
		return out, nil
	}

	if line := r.fromCache(off, length); line != nil {
		return line, nil
	}

	want := length
	if want < minReadAhead {
		want = minReadAhead
	}
	if off+want > r.size {
		want = r.size - off
	}

	resp, body, err := r.request(ctx, off, want)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPartialContent {
		return nil, &TransportError{Status: resp.StatusCode, Offset: off, Length: want}
	}

	r.storeLine(off, body)

	if int64(len(body)) < length {
		// Truncated body; hand back what arrived.
		length = int64(len(body))
	}
	out := make([]byte, length)
	copy(out, body[:length])
	return out, nil
}

// fromCache copies [off, off+length) out of the cache line when it is fully
// contained, or returns nil on a miss.
func (r *RangeReader) fromCache(off, length int64) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.line == nil || off < r.lineOff || off+length > r.lineOff+int64(len(r.line)) {
		return nil
	}
	out := make([]byte, length)
	copy(out, r.line[off-r.lineOff:])
	return out
}

// storeLine replaces the cache line. Concurrent misses each store a
// consistent (offset, data) pair; last writer wins.
func (r *RangeReader) storeLine(off int64, data []byte) {
	r.mu.Lock()
	r.lineOff = off
	r.line = data
	r.mu.Unlock()
}

// request issues one Range GET for [off, off+length) and drains the body.
func (r *RangeReader) request(ctx context.Context, off, length int64) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building range request")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return nil, nil, &TransportError{Status: resp.StatusCode, Offset: off, Length: length}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading response body for bytes %d-%d", off, off+length-1)
	}

	r.requestCount.Inc()
	r.bytesDownloaded.Add(int64(len(body)))
	r.log.Debug("range read",
		zap.Int64("offset", off),
		zap.Int64("requested", length),
		zap.Int("received", len(body)))

	return resp, body, nil
}

// parseContentRangeTotal extracts N from a "bytes a-b/N" Content-Range value.
func parseContentRangeTotal(header string) (int64, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok {
		return 0, errors.Errorf("malformed Content-Range %q", header)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, errors.Errorf("malformed Content-Range total %q", header)
	}
	return size, nil
}

package assets

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/wippyai/ceval/errors"
)

const (
	defaultAttempts = 3
	defaultDelay    = 250 * time.Millisecond

	// maxPrealloc caps how much of a declared Content-Length is reserved
	// up front. Larger bodies grow the buffer as they arrive.
	maxPrealloc = 256 * 1024 * 1024
)

// Progress is one download progress notification.
type Progress struct {
	Loaded int64
	// Total is the expected size, or -1 when the server did not announce it.
	Total int64
	// Done is set on the final notification after the body was read.
	Done bool
}

// ProgressFunc observes download progress. It is called synchronously from
// the downloading goroutine.
type ProgressFunc func(Progress)

// FetcherOptions configures a Fetcher. All fields are optional.
type FetcherOptions struct {
	Client *http.Client
	Logger *zap.Logger
	// Attempts bounds tries for network errors and 5xx responses.
	Attempts uint
	Delay    time.Duration
}

// Fetcher downloads assets over HTTP.
type Fetcher struct {
	client   *http.Client
	logger   *zap.Logger
	attempts uint
	delay    time.Duration
}

// NewFetcher creates a Fetcher. A nil opts uses http.DefaultClient and
// three attempts.
func NewFetcher(opts *FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		logger:   zap.NewNop(),
		attempts: defaultAttempts,
		delay:    defaultDelay,
	}
	if opts == nil {
		return f
	}
	if opts.Client != nil {
		f.client = opts.Client
	}
	if opts.Logger != nil {
		f.logger = opts.Logger
	}
	if opts.Attempts > 0 {
		f.attempts = opts.Attempts
	}
	if opts.Delay > 0 {
		f.delay = opts.Delay
	}
	return f
}

// Fetch downloads url into memory, reporting progress to onProgress if it
// is not nil. 4xx responses and context cancellation are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	data, err := retry.DoWithData(
		func() ([]byte, error) {
			return f.fetchOnce(ctx, url, onProgress)
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("asset fetch failed, retrying",
				zap.String("url", url), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Canceled(errors.PhaseFetch, ctx.Err())
		}
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(errors.InvalidInput(errors.PhaseFetch, err.Error()))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Fetch(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.HTTPStatus(url, resp.StatusCode)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 && resp.ContentLength <= maxPrealloc {
		buf.Grow(int(resp.ContentLength))
	}

	var body io.Reader = resp.Body
	pr := &progressReader{r: resp.Body, total: resp.ContentLength, fn: onProgress}
	if onProgress != nil {
		body = pr
	}

	if _, err := buf.ReadFrom(body); err != nil {
		return nil, errors.Fetch(url, err)
	}
	if onProgress != nil {
		onProgress(Progress{Loaded: pr.loaded, Total: pr.total, Done: true})
	}

	f.logger.Debug("asset fetched", zap.String("url", url), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func retryable(err error) bool {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return true
	}
	switch e.Kind {
	case errors.KindNetwork:
		return !stderrors.Is(e.Cause, context.Canceled) && !stderrors.Is(e.Cause, context.DeadlineExceeded)
	case errors.KindHTTPStatus:
		code, _ := e.Value.(int)
		return code >= 500
	default:
		return false
	}
}

type progressReader struct {
	r      io.Reader
	fn     ProgressFunc
	loaded int64
	total  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.fn(Progress{Loaded: p.loaded, Total: p.total})
	}
	return n, err
}

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/core/domainerr"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxDocumentSize     = 8 << 20
	retryDelay          = 250 * time.Millisecond
)

// Fetcher issues GET requests under a repository root with a per-request
// timeout and a bounded number of retries.
type Fetcher struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	retries int
	logger  hclog.Logger
}

// FetcherOptions configures a Fetcher. Retries above one are clamped.
type FetcherOptions struct {
	Timeout time.Duration
	Retries int
	Client  *http.Client
	Logger  hclog.Logger
}

func NewFetcher(root string, opts FetcherOptions) (*Fetcher, error) {
	base, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("invalid repository url %q: %w", root, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid repository url %q: scheme must be http or https", root)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Retries > 1 {
		opts.Retries = 1
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Fetcher{
		base:    base,
		client:  opts.Client,
		timeout: opts.Timeout,
		retries: opts.Retries,
		logger:  opts.Logger.Named("fetch"),
	}, nil
}

// URL resolves a slash path under the repository root.
func (f *Fetcher) URL(rel string) string {
	return f.base.JoinPath(rel).String()
}

// Get fetches rel under the repository root.
func (f *Fetcher) Get(ctx context.Context, rel string) ([]byte, error) {
	return f.GetURL(ctx, f.URL(rel))
}

// GetURL fetches an absolute URL. Errors are *domainerr.FetchError; client
// errors such as 404 are not retried.
func (f *Fetcher) GetURL(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &domainerr.FetchError{URL: target, Err: ctx.Err()}
			case <-time.After(retryDelay):
			}
			f.logger.Debug("retrying request", "url", target, "attempt", attempt+1)
		}

		data, err := f.get(ctx, target)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var fe *domainerr.FetchError
		if errors.As(err, &fe) && !fe.Retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &domainerr.FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", "maadoctor")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domainerr.FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &domainerr.FetchError{URL: target, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, &domainerr.FetchError{URL: target, Err: err}
	}
	if len(data) > maxDocumentSize {
		return nil, &domainerr.FetchError{URL: target, Err: fmt.Errorf("document larger than %d bytes", maxDocumentSize)}
	}
	return data, nil
}

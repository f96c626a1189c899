package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	userAgent       = "sluice/1.0"
	fetchMaxElapsed = 30 * time.Second
)

func newFetchBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = fetchMaxElapsed
	return bo
}

// retryable reports whether a fetch attempt is worth repeating: transport
// errors, HTTP 5xx, and 429 clear up on their own often enough. Everything
// else is permanent for the current run.
func retryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindNetwork {
		return false
	}
	return fe.Status == 0 ||
		fe.Status >= http.StatusInternalServerError ||
		fe.Status == http.StatusTooManyRequests
}

type httpFetcher struct {
	client *http.Client
	url    string
}

func newHTTPFetcher(client *http.Client, rawURL string) (*httpFetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid source url %q: scheme must be http or https", rawURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &httpFetcher{client: client, url: rawURL}, nil
}

// Fetch retrieves the payload, retrying transient failures with exponential
// backoff until the payload arrives or the backoff window closes.
func (f *httpFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	var body io.ReadCloser
	bo := newFetchBackoff()
	err := backoff.Retry(func() error {
		rc, err := f.fetchOnce(ctx)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = rc
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *httpFetcher) fetchOnce(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Target: f.url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Target: f.url, Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	resp.Body.Close()

	kind := KindNetwork
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		kind = KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindPermission
	}
	return nil, &FetchError{
		Kind:   kind,
		Target: f.url,
		Status: resp.StatusCode,
		Err:    fmt.Errorf("server returned %s", resp.Status),
	}
}

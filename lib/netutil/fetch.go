// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, body)
}

// Fetcher issues GET requests with a fixed User-Agent.
type Fetcher struct {
	// Client performs the requests. Nil means http.DefaultClient.
	Client *http.Client

	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// get issues the request and returns the response when its status is
// 2xx. The caller closes the body.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	if f.UserAgent != "" {
		request.Header.Set("User-Agent", f.UserAgent)
	}

	response, err := f.client().Do(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		return nil, &StatusError{
			URL:        url,
			StatusCode: response.StatusCode,
			Body:       ErrorBody(response.Body),
		}
	}
	return response, nil
}

// GetJSON fetches url and decodes the JSON body into v. A positive
// timeout bounds the whole exchange, body included.
func (f *Fetcher) GetJSON(ctx context.Context, url string, timeout time.Duration, v any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	response, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if err := DecodeResponse(response.Body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// Download streams the body of url into w and returns the byte count.
// Only ctx bounds the transfer.
func (f *Fetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	response, err := f.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	written, err := io.Copy(w, response.Body)
	if err != nil {
		return written, fmt.Errorf("downloading %s: %w", url, err)
	}
	return written, nil
}

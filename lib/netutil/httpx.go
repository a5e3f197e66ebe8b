// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP helpers for release metadata
// and bundle downloads.
//
// Response helpers (ReadResponse, DecodeResponse, ErrorBody) bound body
// reads at MaxResponseSize so a misbehaving server cannot exhaust
// memory. They are for JSON API responses. Bundle downloads go through
// [Fetcher.Download], which streams to a writer instead.
//
// [Fetcher] is the generic GET used by the relay: it sets the
// configured User-Agent, applies an optional per-request timeout, and
// turns non-2xx statuses into [*StatusError].
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize is the bound on JSON API response body reads: 8 MB.
// Release metadata documents are a few kilobytes.
const MaxResponseSize int64 = 8 << 20

// maxErrorBody bounds how much of an error response is kept for
// diagnostics.
const maxErrorBody int64 = 4 << 10

// ReadResponse reads a JSON API response body, failing when it is
// larger than MaxResponseSize.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// DecodeResponse reads a JSON API response body with ReadResponse and
// JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads the start of an HTTP error response body for
// diagnostic error messages. Read errors are ignored: a partial or
// empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return string(data)
}

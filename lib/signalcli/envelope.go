// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signalcli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Envelope is one JSON value printed by "receive". Only the fields the
// relay uses are decoded; the rest are ignored.
type Envelope struct {
	Account  string       `json:"account,omitempty"`
	Envelope EnvelopeBody `json:"envelope"`
}

// EnvelopeBody is the "envelope" object.
type EnvelopeBody struct {
	Source       string       `json:"source,omitempty"`
	SourceNumber string       `json:"sourceNumber"`
	SourceName   string       `json:"sourceName,omitempty"`
	Timestamp    json.Number  `json:"timestamp,omitempty"`
	DataMessage  *DataMessage `json:"dataMessage,omitempty"`
}

// DataMessage carries the text of an incoming message. Message is nil
// when the field is absent (receipts, attachment-only messages).
type DataMessage struct {
	Timestamp json.Number `json:"timestamp"`
	Message   *string     `json:"message"`
}

// Sender returns the sender's phone number.
func (e *Envelope) Sender() string {
	return e.Envelope.SourceNumber
}

// MessageTimestamp returns the data message timestamp, or "" if absent.
func (e *Envelope) MessageTimestamp() string {
	if e.Envelope.DataMessage == nil {
		return ""
	}
	return e.Envelope.DataMessage.Timestamp.String()
}

// Text returns the message body and whether one was present.
func (e *Envelope) Text() (string, bool) {
	if e.Envelope.DataMessage == nil || e.Envelope.DataMessage.Message == nil {
		return "", false
	}
	return *e.Envelope.DataMessage.Message, true
}

// DecodeEnvelopes parses a stream of zero or more JSON values. On a
// decode error it returns the envelopes decoded before it along with
// the error, since the client has already consumed them from the
// server.
func DecodeEnvelopes(output []byte) ([]Envelope, error) {
	decoder := json.NewDecoder(bytes.NewReader(output))
	var envelopes []Envelope
	for {
		var envelope Envelope
		err := decoder.Decode(&envelope)
		if errors.Is(err, io.EOF) {
			return envelopes, nil
		}
		if err != nil {
			return envelopes, fmt.Errorf("decoding envelope %d: %w", len(envelopes)+1, err)
		}
		envelopes = append(envelopes, envelope)
	}
}

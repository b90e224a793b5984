// Package broker implements the AMQP headers-exchange wiring that carries
// buffered HTTP requests from the router to per-flavour consumers and back.
package broker

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// RequestEnvelope is the message body published by the router for every
// buffered HTTP call. Body is base64-encoded so the envelope round-trips
// through JSON without corrupting binary payloads.
type RequestEnvelope struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Forced  bool              `json:"forced"`
}

// ResponseEnvelope is the message body a consumer publishes back to the
// router's reply queue once the forwarded HTTP call completes.
type ResponseEnvelope struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// EncodeBody base64-encodes an arbitrary byte payload for envelope transport.
func EncodeBody(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBody reverses EncodeBody.
func DecodeBody(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("broker: decode envelope body: %w", err)
	}
	return data, nil
}

// MarshalRequest serialises a RequestEnvelope to JSON bytes.
func MarshalRequest(env RequestEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal request envelope: %w", err)
	}
	return data, nil
}

// UnmarshalRequest parses a RequestEnvelope from JSON bytes.
func UnmarshalRequest(data []byte) (RequestEnvelope, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RequestEnvelope{}, fmt.Errorf("broker: unmarshal request envelope: %w", err)
	}
	return env, nil
}

// MarshalResponse serialises a ResponseEnvelope to JSON bytes.
func MarshalResponse(env ResponseEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal response envelope: %w", err)
	}
	return data, nil
}

// UnmarshalResponse parses a ResponseEnvelope from JSON bytes.
func UnmarshalResponse(data []byte) (ResponseEnvelope, error) {
	var env ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("broker: unmarshal response envelope: %w", err)
	}
	return env, nil
}

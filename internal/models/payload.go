package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// payload is the top-level response object shared by both schemas
type payload struct {
	Alerts json.RawMessage `json:"alerts"`
}

// countedInput is one element of a counted payload
type countedInput struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// Decode parses an endpoint response body into an ordered alert list.
// A missing or null "alerts" field yields an empty list.
func Decode(schema Schema, body []byte) ([]Alert, error) {
	if !schema.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}

	// The top level must be an object
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}

	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if len(p.Alerts) == 0 || bytes.Equal(p.Alerts, []byte("null")) {
		return []Alert{}, nil
	}

	switch schema {
	case SchemaText:
		return decodeText(p.Alerts)
	default:
		return decodeCounted(p.Alerts)
	}
}

func decodeText(raw json.RawMessage) ([]Alert, error) {
	var messages []*string
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("%w: alerts: %v", ErrMalformedPayload, err)
	}

	alerts := make([]Alert, 0, len(messages))
	for i, m := range messages {
		if m == nil {
			return nil, fmt.Errorf("%w: alerts[%d] is null", ErrMalformedPayload, i)
		}
		alerts = append(alerts, TextAlert(*m))
	}
	return alerts, nil
}

func decodeCounted(raw json.RawMessage) ([]Alert, error) {
	var inputs []*countedInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("%w: alerts: %v", ErrMalformedPayload, err)
	}

	alerts := make([]Alert, 0, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("%w: alerts[%d] is null", ErrMalformedPayload, i)
		}
		alert := CountedAlert(in.Count, in.Message)
		if err := alert.Validate(); err != nil {
			return nil, fmt.Errorf("alerts[%d]: %w", i, err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

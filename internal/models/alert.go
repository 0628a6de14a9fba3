package models

import (
	"errors"
	"strings"
)

// Schema identifies the payload layout an alert endpoint returns
type Schema string

const (
	// SchemaText is a list of plain strings: {"alerts": ["disk full"]}
	SchemaText Schema = "text"

	// SchemaCounted is a list of count/message records:
	// {"alerts": [{"count": 3, "message": "retries"}]}
	SchemaCounted Schema = "counted"
)

// Decoding errors
var (
	ErrUnknownSchema    = errors.New("unknown alert schema")
	ErrMalformedPayload = errors.New("malformed alert payload")
	ErrNegativeCount    = errors.New("alert count cannot be negative")
)

// Alert is a single notification item decoded from an endpoint response
type Alert struct {
	// Message is the alert text as sent by the server
	Message string `json:"message"`

	// Count is how many times the alert fired (counted schema only)
	Count int `json:"count,omitempty"`

	// Counted reports whether the alert came from the counted schema
	Counted bool `json:"counted"`
}

// TextAlert builds an alert of the text schema
func TextAlert(message string) Alert {
	return Alert{Message: message}
}

// CountedAlert builds an alert of the counted schema
func CountedAlert(count int, message string) Alert {
	return Alert{Message: message, Count: count, Counted: true}
}

// Validate checks the alert against its schema constraints
func (a Alert) Validate() error {
	if a.Counted && a.Count < 0 {
		return ErrNegativeCount
	}
	return nil
}

// IsValid checks if the schema is known
func (s Schema) IsValid() bool {
	switch s {
	case SchemaText, SchemaCounted:
		return true
	default:
		return false
	}
}

// ParseSchema parses a schema name, case-insensitively
func ParseSchema(name string) (Schema, error) {
	s := Schema(strings.ToLower(strings.TrimSpace(name)))
	if !s.IsValid() {
		return "", ErrUnknownSchema
	}
	return s, nil
}

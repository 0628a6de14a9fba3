package models

import (
	"time"
)

// Envelope wraps a Snapshot with internal metadata for publishing
type Envelope struct {
	// Rendered container state
	Snapshot Snapshot `json:"snapshot"`

	// Internal publishing metadata
	ReceivedAt   time.Time `json:"received_at"`
	Node         string    `json:"node"`
	Poller       string    `json:"poller"`
	BatchID      string    `json:"batch_id,omitempty"`
	BatchIndex   int       `json:"batch_index,omitempty"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope wrapping a snapshot
func NewEnvelope(snap Snapshot, poller, node string) *Envelope {
	return &Envelope{
		Snapshot:     snap,
		ReceivedAt:   time.Now().UTC(),
		Node:         node,
		Poller:       poller,
		PartitionKey: snap.ContainerID, // partition by container for ordering
	}
}

// WithBatch sets batch metadata on the envelope
func (e *Envelope) WithBatch(batchID string, index int) *Envelope {
	e.BatchID = batchID
	e.BatchIndex = index
	return e
}

package models

import (
	"html/template"
	"time"
)

// Row is one rendered entry of a display container
type Row struct {
	// Text is the row's plain-text content
	Text string `json:"text"`

	// HTML is the row's markup as it is placed in the container
	HTML template.HTML `json:"html"`
}

// Snapshot is the complete rendered state of a container at one version
type Snapshot struct {
	ContainerID string    `json:"container_id"`
	Version     uint64    `json:"version"`
	Rows        []Row     `json:"rows"`
	AlertCount  int       `json:"alert_count"`
	Placeholder bool      `json:"placeholder"`
	RenderedAt  time.Time `json:"rendered_at"`
}

// Clone returns a deep copy of the snapshot
func (s Snapshot) Clone() Snapshot {
	rows := make([]Row, len(s.Rows))
	copy(rows, s.Rows)
	s.Rows = rows
	return s
}

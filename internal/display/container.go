// Package display holds the containers pollers render into.
package display

import (
	"html/template"
	"strings"
	"sync"
	"time"

	"alertwatch/internal/models"
	"alertwatch/internal/render"
)

// Container is a display region owned by exactly one poller. Its content
// is only ever replaced whole.
type Container struct {
	id string

	mu    sync.RWMutex
	snap  models.Snapshot
	nowFn func() time.Time
}

// New creates an empty container. Until the first successful poll it
// holds no rows.
func New(id string) *Container {
	return &Container{
		id:    id,
		snap:  models.Snapshot{ContainerID: id, Rows: []models.Row{}},
		nowFn: time.Now,
	}
}

// ID returns the container identifier
func (c *Container) ID() string { return c.id }

// Replace swaps the full content of the container and returns the new
// snapshot. alertCount is the number of alerts the rows were rendered from.
func (c *Container) Replace(rows []models.Row, alertCount int) models.Snapshot {
	owned := make([]models.Row, len(rows))
	copy(owned, rows)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap = models.Snapshot{
		ContainerID: c.id,
		Version:     c.snap.Version + 1,
		Rows:        owned,
		AlertCount:  alertCount,
		Placeholder: alertCount == 0 && len(owned) == 1 && owned[0] == render.Placeholder,
		RenderedAt:  c.nowFn().UTC(),
	}
	return c.snap.Clone()
}

// Snapshot returns a copy of the current content
func (c *Container) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Version returns the current content version. Zero means never rendered.
func (c *Container) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Version
}

// HTML returns the container element with its rows
func (c *Container) HTML() template.HTML {
	snap := c.Snapshot()

	var b strings.Builder
	b.WriteString(`<div id="`)
	b.WriteString(template.HTMLEscapeString(c.id))
	b.WriteString(`">`)
	for _, row := range snap.Rows {
		b.WriteString(string(row.HTML))
	}
	b.WriteString(`</div>`)
	return template.HTML(b.String())
}

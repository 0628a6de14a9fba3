package display

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertwatch/internal/models"
	"alertwatch/internal/render"
)

func TestContainerReplace(t *testing.T) {
	c := New("alerts-container")
	fixed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return fixed }

	assert.Zero(t, c.Version())
	assert.Empty(t, c.Snapshot().Rows)

	rows := render.Render([]models.Alert{models.TextAlert("disk full"), models.TextAlert("cpu high")}, render.MarkupEscape)
	snap := c.Replace(rows, 2)

	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, "alerts-container", snap.ContainerID)
	assert.Equal(t, 2, snap.AlertCount)
	assert.False(t, snap.Placeholder)
	assert.Equal(t, fixed, snap.RenderedAt)
	require.Len(t, snap.Rows, 2)

	// Same input again replaces instead of appending
	snap = c.Replace(rows, 2)
	assert.Equal(t, uint64(2), snap.Version)
	assert.Len(t, c.Snapshot().Rows, 2)
}

func TestContainerPlaceholder(t *testing.T) {
	c := New("alert-container")
	snap := c.Replace(render.Render(nil, render.MarkupRaw), 0)

	assert.True(t, snap.Placeholder)
	assert.Equal(t, `<div id="alert-container"><p>No alerts detected.</p></div>`, string(c.HTML()))
}

func TestContainerSnapshotIsCopy(t *testing.T) {
	c := New("c")
	rows := []models.Row{{Text: "a"}}
	c.Replace(rows, 1)

	// Neither the caller's slice nor a returned snapshot aliases the container
	rows[0].Text = "mutated"
	snap := c.Snapshot()
	snap.Rows[0].Text = "mutated"

	assert.Equal(t, "a", c.Snapshot().Rows[0].Text)
}

func TestContainerHTMLEscapesID(t *testing.T) {
	c := New(`x"><script>`)
	assert.Equal(t, `<div id="x&#34;&gt;&lt;script&gt;"></div>`, string(c.HTML()))
}

func TestContainerConcurrentReplace(t *testing.T) {
	c := New("c")
	rows := render.Render([]models.Alert{models.TextAlert("a")}, render.MarkupEscape)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Replace(rows, 1)
			_ = c.HTML()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(20), c.Version())
	assert.Len(t, c.Snapshot().Rows, 1)
}

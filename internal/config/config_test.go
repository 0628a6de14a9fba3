package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertwatch/internal/models"
	"alertwatch/internal/render"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Pollers, 2)
	assert.False(t, cfg.Kafka.Enabled())

	u, err := cfg.URL(cfg.Pollers[0])
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/get_alerts", u)

	u, err = cfg.URL(cfg.Pollers[1])
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/alerts", u)
}

func TestPresets(t *testing.T) {
	text, err := Preset("text")
	require.NoError(t, err)
	assert.Equal(t, models.SchemaText, text.Schema)
	assert.Equal(t, model.Duration(2*time.Second), text.Interval)
	assert.Equal(t, render.MarkupEscape, text.Markup)

	counted, err := Preset("counted")
	require.NoError(t, err)
	assert.Equal(t, models.SchemaCounted, counted.Schema)
	assert.Equal(t, model.Duration(10*time.Second), counted.Interval)
	assert.Equal(t, render.MarkupRaw, counted.Markup)

	_, err = Preset("html")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
listen_address: ":9100"
upstream:
  url: https://proctor.example.com/app
pollers:
  - preset: counted
    markup: escape
    timeout: 5s
  - name: custom
    schema: text
    path: /v2/alerts
    interval: 500ms
    container_id: custom-container
    markup: escape
    drop_stale: true
kafka:
  brokers: [kafka-1:9092]
  coalesce: true
`))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddress)
	require.Len(t, cfg.Pollers, 2)

	counted := cfg.Pollers[0]
	assert.Equal(t, "counted", counted.Name)
	assert.Equal(t, render.MarkupEscape, counted.Markup)
	assert.Equal(t, model.Duration(5*time.Second), counted.Timeout)
	assert.Equal(t, model.Duration(10*time.Second), counted.Interval)

	custom := cfg.Pollers[1]
	assert.True(t, custom.DropStale)
	assert.Equal(t, model.Duration(500*time.Millisecond), custom.Interval)

	u, err := cfg.URL(custom)
	require.NoError(t, err)
	assert.Equal(t, "https://proctor.example.com/app/v2/alerts", u)

	// Unset kafka fields keep their defaults
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "alertwatch-snapshots", cfg.Kafka.Topic)
	assert.Equal(t, 50, cfg.Kafka.Producer.BatchSize)
	assert.True(t, cfg.Kafka.Coalesce)
	assert.False(t, DefaultKafka().Coalesce)
}

func TestParseAbsolutePath(t *testing.T) {
	cfg := Default()
	p := PresetText()
	p.Path = "http://other:8000/alerts"

	u, err := cfg.URL(p)
	require.NoError(t, err)
	assert.Equal(t, "http://other:8000/alerts", u)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "listen_adress: \":80\"\n"},
		{"unknown preset", "pollers:\n  - preset: html\n"},
		{"bad schema", "pollers:\n  - {name: a, schema: xml, path: /a, interval: 1s, container_id: a, markup: raw}\n"},
		{"bad markup", "pollers:\n  - {name: a, schema: text, path: /a, interval: 1s, container_id: a, markup: sanitize}\n"},
		{"zero interval", "pollers:\n  - {name: a, schema: text, path: /a, container_id: a, markup: raw}\n"},
		{"shared container", "pollers:\n  - {preset: text}\n  - {preset: counted, name: other, container_id: alerts-container}\n"},
		{"duplicate name", "pollers:\n  - {preset: text}\n  - {preset: text, container_id: second}\n"},
		{"no pollers", "pollers: []\n"},
		{"bad scheme", "upstream:\n  url: ftp://localhost\n"},
		{"kafka without topic", "kafka:\n  brokers: [k:9092]\n  topic: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alertwatch.yml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\npollers:\n  - preset: text\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Pollers, 1)
	assert.Equal(t, "alerts-container", cfg.Pollers[0].ContainerID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

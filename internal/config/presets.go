package config

import (
	"fmt"
	"time"

	"github.com/prometheus/common/model"

	"alertwatch/internal/models"
	"alertwatch/internal/render"
)

// PresetText polls a list of plain alert strings every 2 seconds. Alert
// text is always escaped.
func PresetText() PollerConfig {
	return PollerConfig{
		Name:        "text",
		Schema:      models.SchemaText,
		Path:        "/alerts",
		Interval:    model.Duration(2 * time.Second),
		ContainerID: "alerts-container",
		Markup:      render.MarkupEscape,
	}
}

// PresetCounted polls count/message records every 10 seconds and places
// messages into rows as raw markup.
func PresetCounted() PollerConfig {
	return PollerConfig{
		Name:        "counted",
		Schema:      models.SchemaCounted,
		Path:        "/get_alerts",
		Interval:    model.Duration(10 * time.Second),
		ContainerID: "alert-container",
		Markup:      render.MarkupRaw,
	}
}

// Preset returns a named preset
func Preset(name string) (PollerConfig, error) {
	switch name {
	case "text":
		return PresetText(), nil
	case "counted":
		return PresetCounted(), nil
	default:
		return PollerConfig{}, fmt.Errorf("unknown preset %q", name)
	}
}

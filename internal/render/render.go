// Package render turns decoded alert lists into container rows.
package render

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"alertwatch/internal/models"
)

// Markup controls whether counted alert content is escaped before it is
// placed in a row. Text alerts are always escaped.
type Markup string

const (
	MarkupEscape Markup = "escape"
	MarkupRaw    Markup = "raw"
)

// PlaceholderText is the content of the row shown for an empty alert list
const PlaceholderText = "No alerts detected."

// Placeholder is the single row rendered when there are no alerts
var Placeholder = models.Row{
	Text: PlaceholderText,
	HTML: template.HTML("<p>" + PlaceholderText + "</p>"),
}

// IsValid checks if the markup policy is known
func (m Markup) IsValid() bool {
	return m == MarkupEscape || m == MarkupRaw
}

// ParseMarkup parses a markup policy name
func ParseMarkup(name string) (Markup, error) {
	m := Markup(strings.ToLower(strings.TrimSpace(name)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown markup policy %q", name)
	}
	return m, nil
}

// Render produces one row per alert in input order, or the single
// placeholder row when alerts is empty.
func Render(alerts []models.Alert, policy Markup) []models.Row {
	if len(alerts) == 0 {
		return []models.Row{Placeholder}
	}

	rows := make([]models.Row, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, Row(a, policy))
	}
	return rows
}

// Row renders a single alert
func Row(a models.Alert, policy Markup) models.Row {
	if !a.Counted {
		return models.Row{
			Text: a.Message,
			HTML: template.HTML(`<div class="alerts">` + template.HTMLEscapeString(a.Message) + `</div>`),
		}
	}

	count := strconv.Itoa(a.Count)
	message := a.Message
	if policy != MarkupRaw {
		message = template.HTMLEscapeString(message)
	}

	return models.Row{
		Text: count + "x " + a.Message,
		HTML: template.HTML(`<div class="alert"><p><span>` + count + `x</span> ` + message + `</p></div>`),
	}
}

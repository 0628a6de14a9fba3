package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"math"
	"net/http"
	"time"

	"alertwatch/internal/display"
	"alertwatch/internal/logger"
	"alertwatch/internal/models"
	"alertwatch/internal/poller"
)

// Source is a poller as seen by the HTTP surface
type Source interface {
	Name() string
	Interval() time.Duration
	Container() *display.Container
	Status() poller.Status
}

// HealthChecker is an optional dependency reported by /health
type HealthChecker func(ctx context.Context) error

// Handler serves the alert page, the snapshot API and health checks
type Handler struct {
	sources []Source
	checks  map[string]HealthChecker
	page    *template.Template
}

// NewHandler creates a handler over the given pollers
func NewHandler(sources []Source, checks map[string]HealthChecker) *Handler {
	return &Handler{
		sources: sources,
		checks:  checks,
		page:    template.Must(template.New("page").Parse(pageTemplate)),
	}
}

// Register adds the handler routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.servePage)
	mux.HandleFunc("GET /api/containers", h.serveContainers)
	mux.HandleFunc("GET /api/containers/{id}", h.serveContainer)
	mux.HandleFunc("GET /health", h.serveHealth)
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Alerts</title>
{{- if .Refresh}}
<meta http-equiv="refresh" content="{{.Refresh}}">
{{- end}}
</head>
<body>
{{- range .Sections}}
<section data-poller="{{.Name}}">
{{.Container}}
</section>
{{- end}}
</body>
</html>
`

type pageSection struct {
	Name      string
	Container template.HTML
}

type pageData struct {
	Refresh  int
	Sections []pageSection
}

// servePage renders every container into one page
func (h *Handler) servePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Refresh: h.refreshSeconds()}
	for _, s := range h.sources {
		data.Sections = append(data.Sections, pageSection{
			Name:      s.Name(),
			Container: s.Container().HTML(),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, data); err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("failed to render page")
	}
}

// refreshSeconds is the fastest poll interval rounded up to whole seconds
func (h *Handler) refreshSeconds() int {
	fastest := time.Duration(0)
	for _, s := range h.sources {
		if fastest == 0 || s.Interval() < fastest {
			fastest = s.Interval()
		}
	}
	if fastest == 0 {
		return 0
	}
	return int(math.Max(1, math.Ceil(fastest.Seconds())))
}

// serveContainers returns the snapshot of every container
func (h *Handler) serveContainers(w http.ResponseWriter, r *http.Request) {
	snaps := make([]models.Snapshot, 0, len(h.sources))
	for _, s := range h.sources {
		snaps = append(snaps, s.Container().Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"containers": snaps})
}

// serveContainer returns one container snapshot by ID
func (h *Handler) serveContainer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, s := range h.sources {
		if s.Container().ID() == id {
			writeJSON(w, http.StatusOK, s.Container().Snapshot())
			return
		}
	}
	writeError(w, http.StatusNotFound, "container not found")
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Pollers   []poller.Status   `json:"pollers"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// serveHealth reports unhealthy when a poller is not running or a
// dependency check fails
func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Pollers:   make([]poller.Status, 0, len(h.sources)),
	}

	for _, s := range h.sources {
		status := s.Status()
		if !status.Running {
			resp.Status = "unhealthy"
		}
		resp.Pollers = append(resp.Pollers, status)
	}

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unhealthy"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

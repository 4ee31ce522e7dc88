package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"cuadre/internal/core"
	applog "cuadre/internal/log"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.metrics.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the templates and pings the backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.backend == nil:
		checks["backend"] = "not_configured"
	default:
		if err := s.backend.Ping(ctx); err != nil {
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	checks["cache"] = map[string]interface{}{
		"config_entries": s.configCache.Size(),
		"status":         "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewHTMXResponse().
		Status(httpStatus).
		BodyJSON(map[string]interface{}{
			"status":    status,
			"timestamp": s.now().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	m := s.metrics
	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge("http_request_duration_avg_microseconds", "Average request duration", traceMetrics.AverageResponseTime)
	counter("cuadre_saves_total", "Reconciliations appended to the ledger", m.saves.Load())
	counter("cuadre_duplicate_saves_total", "Saves for a store and date that already had a row", m.duplicates.Load())
	counter("cuadre_mismatches_total", "Saves rejected because the breakdown did not match", m.mismatches.Load())
	counter("cuadre_invalid_header_total", "Saves rejected for a missing store or date", m.invalidHeader.Load())
	counter("cuadre_gateway_errors_total", "Failed ledger appends", m.gatewayErrors.Load())
	counter("cuadre_items_added_total", "Line items added to a form", m.itemsAdded.Load())
	counter("cuadre_items_rejected_total", "Line items ignored by validation", m.itemsRejected.Load())
	counter("cuadre_invalid_input_total", "Submissions with unparseable amounts or dates", m.invalidInput.Load())
	counter("cache_hits_total", "Configuration list cache hits", m.cacheHits.Load())
	counter("cache_misses_total", "Configuration list cache misses", m.cacheMisses.Load())
	counter("rate_limit_hits_total", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	counter("suspicious_requests_total", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	gauge("uptime_seconds", "Application uptime in seconds", int64(s.now().Sub(m.started).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, f, err := s.sessions.Load(w, r)
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	body, err := s.render("index.html", s.formView(r.Context(), f, nil))
	if err != nil {
		s.renderFailure(w, r, "index.html", err)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleStatePartial re-renders the form state fragment.
func (s *Server) handleStatePartial(w http.ResponseWriter, r *http.Request) {
	_, f, err := s.sessions.Load(w, r)
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	s.respondState(w, r, NewHTMXResponse(), f, nil)
}

func (s *Server) handleStateJSON(w http.ResponseWriter, r *http.Request) {
	_, f, err := s.sessions.Load(w, r)
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	NewHTMXResponse().BodyJSON(newAPIState(f)).Write(w)
}

func (s *Server) render(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) formView(ctx context.Context, f *core.Form, msg *message) formView {
	v := newFormView(f, s.configLists(ctx), s.now().In(s.location))
	v.Message = msg
	return v
}

// respondState writes the state fragment for f through resp, adding the
// cuadre:updated trigger.
func (s *Server) respondState(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, f *core.Form, msg *message) {
	s.respondStateWithErrors(w, r, resp, f, msg, nil)
}

func (s *Server) respondStateWithErrors(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, f *core.Form, msg *message, fieldErrors map[string]string) {
	v := s.formView(r.Context(), f, msg)
	v.FieldErrors = fieldErrors
	body, err := s.render("state", v)
	if err != nil {
		s.renderFailure(w, r, "state", err)
		return
	}
	resp.TriggerCuadreUpdated(v.Balanced).BodyHTML(body).Write(w)
}

func (s *Server) sessionFailure(w http.ResponseWriter, r *http.Request, err error) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentSession).ErrorContext(r.Context(), "Session unavailable",
		applog.FieldError, err.Error(),
		applog.FieldPath, r.URL.Path)
	InternalServerError("No se pudo cargar la sesión, recargue la página.").Write(w)
}

func (s *Server) renderFailure(w http.ResponseWriter, r *http.Request, name string, err error) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
		applog.FieldError, err.Error(),
		"template", name)
	InternalServerError("Error al mostrar la página").Write(w)
}

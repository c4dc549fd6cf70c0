package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

const readinessTimeout = 5 * time.Second

// handleListEntries returns the filtered entries together with the totals of
// the whole ledger.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := core.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		BadRequestError("Filter must be one of all, income, expense").Write(w)
		return
	}

	NewResponse().JSON(newListView(s.store.Snapshot(filter))).Write(w)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(newEntryView(entry)).Write(w)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	form, kind, ok := s.parseEntry(w, r)
	if !ok {
		return
	}

	entry, err := s.store.Create(r.Context(), form.Description, form.Amount, kind)
	if err != nil && !ledger.IsPersistenceError(err) {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	s.writeMutation(w, http.StatusCreated, core.OpCreate, &entry, entry.ID, err,
		fmt.Sprintf("Added %s %s", entry.Kind, core.FormatAmount(entry.Amount)))
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	form, kind, ok := s.parseEntry(w, r)
	if !ok {
		return
	}

	entry, err := s.store.Update(r.Context(), r.PathValue("id"), form.Description, form.Amount, kind)
	if err != nil && !ledger.IsPersistenceError(err) {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}

	s.writeMutation(w, http.StatusOK, core.OpUpdate, &entry, entry.ID, err, "Entry updated")
}

// handleDeleteEntry is idempotent: deleting an unknown id succeeds and
// returns the unchanged listing.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.Delete(r.Context(), id)
	if err != nil && !ledger.IsPersistenceError(err) {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}

	s.writeMutation(w, http.StatusOK, core.OpDelete, nil, id, err, "Entry deleted")
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(newTotalsView(s.store.Totals())).Write(w)
}

// parseEntry reads and checks the entry form. On failure the error response
// has been written and ok is false.
func (s *Server) parseEntry(w http.ResponseWriter, r *http.Request) (form EntryForm, kind core.Kind, ok bool) {
	form, err := ParseEntryForm(r)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Malformed entry form",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldOperation, applog.OpParse)
		BadRequestError("Malformed request body").Write(w)
		return form, "", false
	}

	kind, err = core.ParseKind(form.Kind)
	if err != nil {
		s.writeError(w, r, applog.OpValidate, &ledger.ValidationError{Field: "kind", Err: err})
		return form, "", false
	}
	return form, kind, true
}

// writeMutation answers an applied mutation with the new listing and totals.
// A persistence warning keeps the success status and adds a warning.
func (s *Server) writeMutation(w http.ResponseWriter, status int, op core.ChangeOp, entry *core.Entry, id string, perr error, message string) {
	s.appMetrics.record(op)

	snap := s.store.Snapshot(core.FilterAll)
	view := mutationView{
		Entries: newEntryViews(snap.Entries),
		Totals:  newTotalsView(snap.Totals),
	}
	if entry != nil {
		ev := newEntryView(*entry)
		view.Entry = &ev
	}

	resp := NewResponse().
		Status(status).
		TriggerLedgerChanged(string(op), id).
		TriggerFormReset()

	if perr != nil {
		atomic.AddInt64(&s.appMetrics.persistenceWarnings, 1)
		view.Warning = "Changes are kept in memory but could not be saved"
		resp.TriggerWarningNotification(view.Warning)
	} else {
		resp.TriggerSuccessNotification(message)
	}

	resp.JSON(view).Write(w)
}

// writeError maps store errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := applog.FromContext(r.Context())

	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		logger.InfoContext(r.Context(), "Entry rejected",
			applog.FieldOperation, op,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err.Error())
		ValidationFailed(ve.Field, validationMessage(ve)).Write(w)
	case errors.Is(err, ledger.ErrNotFound):
		NotFoundError("Entry not found").Write(w)
	default:
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Ledger operation failed", err,
			applog.ComponentHTTP, op, applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError("Internal error").Write(w)
	}
}

func validationMessage(ve *ledger.ValidationError) string {
	switch {
	case errors.Is(ve.Err, core.ErrEmptyDescription):
		return "Description is required"
	case errors.Is(ve.Err, core.ErrInvalidAmount):
		return "Amount must be a positive number"
	case errors.Is(ve.Err, core.ErrInvalidKind):
		return "Kind must be income or expense"
	default:
		return ve.Error()
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady runs every registered dependency check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"ledger": map[string]any{"status": "ok", "entries": s.store.Len()},
	}

	names := make([]string, 0, len(s.readiness))
	for name := range s.readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.readiness[name](ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	totals := s.store.Totals()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_error_responses_total Responses with status >= 400\n")
	fmt.Fprintf(w, "# TYPE http_error_responses_total counter\n")
	fmt.Fprintf(w, "http_error_responses_total %d\n\n", traceMetrics.ErrorResponses)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_microseconds Mean request handling time\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime())

	fmt.Fprintf(w, "# HELP ledger_mutations_total Applied ledger mutations\n")
	fmt.Fprintf(w, "# TYPE ledger_mutations_total counter\n")
	fmt.Fprintf(w, "ledger_mutations_total{op=\"created\"} %d\n", atomic.LoadInt64(&s.appMetrics.created))
	fmt.Fprintf(w, "ledger_mutations_total{op=\"updated\"} %d\n", atomic.LoadInt64(&s.appMetrics.updated))
	fmt.Fprintf(w, "ledger_mutations_total{op=\"deleted\"} %d\n\n", atomic.LoadInt64(&s.appMetrics.deleted))

	fmt.Fprintf(w, "# HELP ledger_persistence_warnings_total Mutations that could not be saved\n")
	fmt.Fprintf(w, "# TYPE ledger_persistence_warnings_total counter\n")
	fmt.Fprintf(w, "ledger_persistence_warnings_total %d\n\n", atomic.LoadInt64(&s.appMetrics.persistenceWarnings))

	fmt.Fprintf(w, "# HELP ledger_entries Current number of entries\n")
	fmt.Fprintf(w, "# TYPE ledger_entries gauge\n")
	fmt.Fprintf(w, "ledger_entries %d\n\n", s.store.Len())

	fmt.Fprintf(w, "# HELP ledger_totals Current totals\n")
	fmt.Fprintf(w, "# TYPE ledger_totals gauge\n")
	fmt.Fprintf(w, "ledger_totals{kind=\"income\"} %s\n", core.FormatAmount(totals.Income))
	fmt.Fprintf(w, "ledger_totals{kind=\"expense\"} %s\n", core.FormatAmount(totals.Expense))
	fmt.Fprintf(w, "ledger_totals{kind=\"net\"} %s\n\n", core.FormatAmount(totals.Net))

	fmt.Fprintf(w, "# HELP rate_limit_rejections_total Mutations rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejections_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejections_total %d\n\n", rateLimitMetrics.Rejected)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}

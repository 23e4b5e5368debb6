package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/worklog/internal/logging"
	"github.com/JonMunkholm/worklog/internal/report"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ReportResponse is the JSON form of an aggregate table.
type ReportResponse struct {
	Kind       report.Kind     `json:"kind"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Rows       []ReportRow     `json:"rows"`
	TotalHours decimal.Decimal `json:"totalHours"`
}

// ReportRow is one labelled total.
type ReportRow struct {
	Label      string          `json:"label"`
	TotalHours decimal.Decimal `json:"totalHours"`
}

// RangeResponse is the JSON form of the stored work-date range.
type RangeResponse struct {
	HasData bool   `json:"hasData"`
	First   string `json:"first,omitempty"`
	Last    string `json:"last,omitempty"`
}

// handleReport serves GET /api/reports/{kind}?from=&to=&format=json|csv|xlsx.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	kind, err := report.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	format, err := report.ParseFormat(q.Get("format"), report.FormatJSON)
	if err != nil || format == report.FormatTable {
		s.respondError(w, r, badRequest("unknown format %q", q.Get("format")), http.StatusBadRequest)
		return
	}

	from, err := report.ParseDate(q.Get("from"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	to, err := report.ParseDate(q.Get("to"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	table, err := s.reports.Build(r.Context(), kind, from, to)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if format == report.FormatJSON {
		writeJSON(w, http.StatusOK, newReportResponse(table))
		return
	}

	// Render fully before writing headers so a failure still yields a JSON error.
	var buf bytes.Buffer
	switch format {
	case report.FormatCSV:
		err = report.WriteCSV(&buf, table)
	case report.FormatXLSX:
		err = report.WriteXLSX(&buf, table)
	}
	if err != nil {
		s.respondError(w, r, fmt.Errorf("render %s report: %w", format, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, table.FileName(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleReportRange serves GET /api/reports/range.
func (s *Server) handleReportRange(w http.ResponseWriter, r *http.Request) {
	dr, err := s.reports.Range(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	resp := RangeResponse{HasData: dr.HasData}
	if dr.HasData {
		resp.First = dr.First.Format(report.DateLayout)
		resp.Last = dr.Last.Format(report.DateLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":          "ok",
		"activeImports":   s.limiter.Active(),
		"maxConcurrent":   s.limiter.MaxConcurrent(),
		"retainedImports": s.history.Len(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check: database unreachable", "error", err)
			status["status"] = "degraded"
			status["database"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}

func newReportResponse(t *report.Table) ReportResponse {
	rows := make([]ReportRow, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = ReportRow{Label: row.Label, TotalHours: row.TotalHours}
	}
	return ReportResponse{
		Kind:       t.Kind,
		From:       t.From,
		To:         t.To,
		Rows:       rows,
		TotalHours: t.Total(),
	}
}

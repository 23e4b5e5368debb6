package web

// handlers_common.go holds response shapes and small helpers shared by handlers.

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/worklog/internal/core"
)

// maxRejectedInResponse caps the rejected rows echoed in an import response.
// The full list is always available from the error report endpoint.
const maxRejectedInResponse = 1000

// ImportResponse is the JSON form of an import outcome.
type ImportResponse struct {
	ImportID          string              `json:"importId"`
	FileName          string              `json:"fileName"`
	DryRun            bool                `json:"dryRun"`
	TotalRead         int                 `json:"totalRead"`
	PlannedInsert     int                 `json:"plannedInsert"`
	Inserted          int                 `json:"inserted"`
	RejectedTotal     int                 `json:"rejectedTotal"`
	Counts            map[core.Reason]int `json:"counts"`
	Rejected          []core.Rejected     `json:"rejected,omitempty"`
	RejectedTruncated bool                `json:"rejectedTruncated,omitempty"`
	ErrorReportURL    string              `json:"errorReportUrl,omitempty"`
	StartedAt         time.Time           `json:"startedAt"`
	Duration          string              `json:"duration"`
}

// newImportResponse converts an Outcome. Rejected rows are included only when withRows is set.
func newImportResponse(out *core.Outcome, withRows bool) ImportResponse {
	resp := ImportResponse{
		ImportID:      out.ImportID.String(),
		FileName:      out.FileName,
		DryRun:        out.DryRun,
		TotalRead:     out.TotalRead,
		PlannedInsert: out.PlannedInsert,
		Inserted:      out.Inserted,
		RejectedTotal: out.RejectedTotal(),
		Counts:        out.Counts,
		StartedAt:     out.StartedAt,
		Duration:      out.Duration.String(),
	}
	if out.RejectedTotal() > 0 {
		resp.ErrorReportURL = "/api/imports/" + resp.ImportID + "/errors"
	}
	if withRows {
		resp.Rejected = out.Rejected
		if len(resp.Rejected) > maxRejectedInResponse {
			resp.Rejected = resp.Rejected[:maxRejectedInResponse]
			resp.RejectedTruncated = true
		}
	}
	return resp
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseBoolValue accepts the strconv.ParseBool spellings plus "on" from HTML checkboxes.
// Empty input is false.
func parseBoolValue(name, val string) (bool, error) {
	val = strings.TrimSpace(val)
	switch strings.ToLower(val) {
	case "":
		return false, nil
	case "on":
		return true, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, badRequest("%s must be a boolean, got %q", name, val)
	}
	return b, nil
}

// cleanFileName reduces a client-supplied file name to a safe base name.
func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "/", "..":
		return "upload.csv"
	}
	return name
}

package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/worklog/internal/config"
	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/JonMunkholm/worklog/internal/report"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// fakeStore is an in-memory core.Store.
type fakeStore struct {
	mu        sync.Mutex
	keys      core.KeySet
	lookupErr error
	inserted  int
}

func newFakeStore() *fakeStore { return &fakeStore{keys: core.NewKeySet()} }

func (s *fakeStore) ExistingKeys(_ context.Context, keys []core.Key) (core.KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	found := core.NewKeySet()
	for _, k := range keys {
		if s.keys.Has(k) {
			found.Add(k)
		}
	}
	return found, nil
}

func (s *fakeStore) InsertWorkLogs(_ context.Context, _ uuid.UUID, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.keys.Add(r.Key())
	}
	s.inserted += len(records)
	return nil
}

// fakeSource is an in-memory report.Source.
type fakeSource struct {
	err error
}

func (f *fakeSource) MonthlyHours(context.Context, time.Time, time.Time) ([]report.Row, error) {
	return []report.Row{
		{Label: "2024-01", TotalHours: decimal.RequireFromString("12.5")},
		{Label: "2024-02", TotalHours: decimal.NewFromInt(2)},
	}, f.err
}

func (f *fakeSource) TopProjects(context.Context, time.Time, time.Time, int) ([]report.Row, error) {
	return []report.Row{{Label: "Apollo", TotalHours: decimal.RequireFromString("12.5")}}, f.err
}

func (f *fakeSource) TopMembers(context.Context, time.Time, time.Time, int) ([]report.Row, error) {
	return []report.Row{{Label: "alice", TotalHours: decimal.NewFromInt(10)}}, f.err
}

func (f *fakeSource) DateRange(context.Context) (report.DateRange, error) {
	return report.DateRange{
		First:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Last:    time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		HasData: true,
	}, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       5 * time.Second,
			UploadDir:     t.TempDir(),
			ResultTTL:     time.Hour,
		},
		Report:  config.ReportConfig{TopN: 10},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

type harness struct {
	srv   *Server
	store *fakeStore
	cfg   *config.Config
}

func newHarness(t *testing.T, mutate ...func(*config.Config, *Deps)) *harness {
	t.Helper()
	cfg := testConfig(t)
	store := newFakeStore()
	deps := Deps{
		Importer: core.NewImporter(store, nil),
		Reports:  report.NewService(&fakeSource{}, cfg.Report.TopN),
		DB:       fakePinger{},
	}
	for _, m := range mutate {
		m(cfg, &deps)
	}
	srv := NewServer(cfg, deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &harness{srv: srv, store: store, cfg: cfg}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

const worklogCSV = "WorkDate,Member,Project,WorkType,Hours,HourlyRate\n" +
	"2024-01-15,alice,Apollo,dev,8,90\n" +
	"2024-01-15,alice,Apollo,dev,2,\n" +
	"2024-01-16,,Apollo,dev,1,\n"

func uploadRequest(t *testing.T, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != "" {
		fw, err := mw.CreateFormFile("file", "worklogs.csv")
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeImport(t *testing.T, rec *httptest.ResponseRecorder) ImportResponse {
	t.Helper()
	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestCreateImport(t *testing.T) {
	h := newHarness(t)

	rec := h.do(uploadRequest(t, worklogCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeImport(t, rec)
	assert.Equal(t, "worklogs.csv", resp.FileName)
	assert.False(t, resp.DryRun)
	assert.Equal(t, 3, resp.TotalRead)
	assert.Equal(t, 1, resp.PlannedInsert)
	assert.Equal(t, 1, resp.Inserted)
	assert.Equal(t, 2, resp.RejectedTotal)
	assert.Equal(t, 1, resp.Counts[core.ReasonDuplicateInFile])
	assert.Equal(t, 1, resp.Counts[core.ReasonRequiredMissing])
	require.Len(t, resp.Rejected, 2)
	assert.Equal(t, 3, resp.Rejected[0].Position)
	assert.Equal(t, "/api/imports/"+resp.ImportID+"/errors", resp.ErrorReportURL)
	assert.Equal(t, 1, h.store.inserted)

	// The source file is removed; the error report stays in the import directory.
	entries, err := os.ReadDir(filepath.Join(h.cfg.Import.UploadDir, resp.ImportID))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), core.ErrorReportPrefix))
}

func TestCreateImport_DryRun(t *testing.T) {
	h := newHarness(t)

	rec := h.do(uploadRequest(t, worklogCSV, map[string]string{"dry_run": "true"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeImport(t, rec)
	assert.True(t, resp.DryRun)
	assert.Equal(t, 1, resp.PlannedInsert)
	assert.Equal(t, 0, resp.Inserted)
	assert.Equal(t, 0, h.store.inserted)
}

func TestCreateImport_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "no file",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "", map[string]string{"dry_run": "1"}) },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE004",
		},
		{
			name: "bad dry_run",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, worklogCSV, map[string]string{"dry_run": "perhaps"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "REQ001",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader("{}"))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "REQ001",
		},
		{
			name:     "empty file",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "\n", nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE005",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(tt.req(t))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
		})
	}
}

func TestCreateImport_TooLarge(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Deps) { c.Import.MaxFileSize = 256 })

	big := worklogCSV + strings.Repeat("2024-01-17,bob,Apollo,dev,1,\n", 50)
	rec := h.do(uploadRequest(t, big, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestCreateImport_Busy(t *testing.T) {
	limiter := core.NewImportLimiter(1, 20*time.Millisecond)
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	h := newHarness(t, func(_ *config.Config, d *Deps) { d.Limiter = limiter })

	rec := h.do(uploadRequest(t, worklogCSV, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "IMP003", decodeError(t, rec).Code)
}

func TestCreateImport_BatchFailure(t *testing.T) {
	h := newHarness(t)
	h.store.lookupErr = errors.New("pool closed")

	rec := h.do(uploadRequest(t, worklogCSV, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "IMP001", decodeError(t, rec).Code)
	assert.Empty(t, h.srv.History().Recent(0), "failed imports are not retained")

	entries, err := os.ReadDir(h.cfg.Import.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload directory is cleaned up")
}

func TestGetImport(t *testing.T) {
	h := newHarness(t)
	created := decodeImport(t, h.do(uploadRequest(t, worklogCSV, nil)))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+created.ImportID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeImport(t, rec)
	assert.Equal(t, created.ImportID, got.ImportID)
	assert.Equal(t, created.Counts, got.Counts)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rec := h.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "IMP004", decodeError(t, rec).Code)
	}
}

func TestListImports(t *testing.T) {
	h := newHarness(t)
	h.do(uploadRequest(t, worklogCSV, nil))
	h.do(uploadRequest(t, worklogCSV, map[string]string{"dry_run": "on"}))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/imports?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Rejected, "summaries omit rows")
}

func TestImportErrors_FromFile(t *testing.T) {
	h := newHarness(t)
	created := decodeImport(t, h.do(uploadRequest(t, worklogCSV, nil)))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+created.ImportID+"/errors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), core.ErrorReportPrefix)

	lines, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, core.ErrorReportHeader, lines[0])
	assert.Equal(t, []string{"3", "duplicate_in_file"}, lines[1][:2])
	assert.Equal(t, []string{"4", "required_missing"}, lines[2][:2])
}

func TestImportErrors_RenderedWhenReportMissing(t *testing.T) {
	h := newHarness(t)
	out := &core.Outcome{
		ImportID:  uuid.New(),
		StartedAt: time.Now(),
		Rejected:  []core.Rejected{{Position: 2, Reason: core.ReasonInvalidHours, Fields: core.Fields{Hours: "x"}}},
	}
	h.srv.History().Record(out)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+out.ImportID.String()+"/errors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2,invalid_hours,,,,,x,")
}

func TestImportErrors_NothingRejected(t *testing.T) {
	h := newHarness(t)
	out := &core.Outcome{ImportID: uuid.New(), StartedAt: time.Now()}
	h.srv.History().Record(out)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+out.ImportID.String()+"/errors", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEvictionRemovesDirectory(t *testing.T) {
	h := newHarness(t)
	created := decodeImport(t, h.do(uploadRequest(t, worklogCSV, nil)))
	dir := filepath.Join(h.cfg.Import.UploadDir, created.ImportID)
	require.DirExists(t, dir)

	out, err := h.srv.History().Get(uuid.MustParse(created.ImportID))
	require.NoError(t, err)
	h.srv.History().OnEvict(out)
	assert.NoDirExists(t, dir)
}

func TestReport_JSON(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/reports/monthly?from=2024-01-01&to=2024-02-29", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, report.KindMonthly, resp.Kind)
	assert.Equal(t, "2024-01-01", resp.From)
	assert.Equal(t, "2024-02-29", resp.To)
	require.Len(t, resp.Rows, 2)
	assert.True(t, resp.TotalHours.Equal(decimal.RequireFromString("14.5")))
}

func TestReport_CSV(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/reports/projects?format=csv&from=2024-01-01&to=2024-01-31", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "projects_2024-01-01_2024-01-31.csv")
	assert.Equal(t, "Project,TotalHours\nApollo,12.5\n", rec.Body.String())
}

func TestReport_XLSX(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/reports/members?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.FormatXLSX.ContentType(), rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	label, err := f.GetCellValue(string(report.KindMembers), "A2")
	require.NoError(t, err)
	assert.Equal(t, "alice", label)
}

func TestReport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantCode int
		wantErr  string
	}{
		{"unknown kind", "/api/reports/weekly", http.StatusNotFound, "RPT002"},
		{"unknown format", "/api/reports/monthly?format=pdf", http.StatusBadRequest, "RPT003"},
		{"table format is cli only", "/api/reports/monthly?format=table", http.StatusBadRequest, "RPT003"},
		{"bad date", "/api/reports/monthly?from=2024-13-01", http.StatusBadRequest, "RPT001"},
		{"from after to", "/api/reports/monthly?from=2024-02-01&to=2024-01-01", http.StatusBadRequest, "RPT001"},
	}

	h := newHarness(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
		})
	}
}

func TestReport_SourceFailure(t *testing.T) {
	h := newHarness(t, func(c *config.Config, d *Deps) {
		d.Reports = report.NewService(&fakeSource{err: errors.New("dial tcp: connection refused")}, 10)
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/reports/monthly?from=2024-01-01&to=2024-01-31", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DB004", decodeError(t, rec).Code)
}

func TestReportRange(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/reports/range", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, RangeResponse{HasData: true, First: "2024-01-15", Last: "2024-02-03"}, resp)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	down := newHarness(t, func(_ *config.Config, d *Deps) { d.DB = fakePinger{err: errors.New("down")} })
	rec = down.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(uploadRequest(t, worklogCSV, nil))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "worklog_imports_total")
	assert.Contains(t, rec.Body.String(), "worklog_import_rows_total")
}

func TestAPIKeyRequired(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Deps) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/reports/range", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/range", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, h.do(req).Code)

	// Health and metrics stay open for probes.
	assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Deps) { c.Server.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "REQ429", decodeError(t, rec).Code)
}

func TestCleanFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"worklogs.csv", "worklogs.csv"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\jan.csv`, "jan.csv"},
		{"", "upload.csv"},
		{"..", "upload.csv"},
		{"/", "upload.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanFileName(tt.in), "cleanFileName(%q)", tt.in)
	}
}

func TestParseBoolValue(t *testing.T) {
	for _, in := range []string{"true", "1", "on", "TRUE"} {
		b, err := parseBoolValue("dry_run", in)
		require.NoError(t, err)
		assert.True(t, b, in)
	}
	b, err := parseBoolValue("dry_run", "")
	require.NoError(t, err)
	assert.False(t, b)

	_, err = parseBoolValue("dry_run", "yes please")
	assert.Equal(t, "REQ001", core.MapError(err).Code)
}

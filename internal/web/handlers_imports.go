package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/JonMunkholm/worklog/internal/logging"
	"github.com/JonMunkholm/worklog/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// handleCreateImport accepts a multipart upload and imports it synchronously.
//
// Form fields: file (required), dry_run (optional boolean).
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, badRequest("multipart form expected: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	dryRun, err := parseBoolValue("dry_run", r.FormValue("dry_run"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := s.limiter.Acquire(r.Context()); err != nil {
		metrics.ObserveFailure(dryRun, err, 0)
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", "30")
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer s.limiter.Release()

	id := uuid.New()
	fileName := cleanFileName(header.Filename)
	logger := logging.WithFields(r.Context(), "import_id", id.String(), "file", fileName, "dry_run", dryRun)

	path, err := s.saveUpload(id, fileName, file)
	if err != nil {
		metrics.ObserveFailure(dryRun, err, time.Since(started))
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	// The source is not needed once imported; the directory keeps the error report.
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	out, err := s.importer.Import(ctx, path, core.Options{
		ImportID: id,
		DryRun:   dryRun,
		FileName: fileName,
	})
	if err != nil {
		metrics.ObserveFailure(dryRun, err, time.Since(started))
		_ = os.RemoveAll(filepath.Dir(path))
		s.respondError(w, r, err, statusFor(err))
		return
	}

	metrics.ObserveImport(out)
	s.history.Record(out)
	logger.Info("import request served", "inserted", out.Inserted, "rejected", out.RejectedTotal())

	writeJSON(w, http.StatusOK, newImportResponse(out, true))
}

// saveUpload copies the uploaded file to UploadDir/<id>/<name>.
func (s *Server) saveUpload(id uuid.UUID, name string, src multipart.File) (string, error) {
	dir := filepath.Join(s.cfg.Import.UploadDir, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

// handleListImports returns summaries of recent imports, newest first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)

	recent := s.history.Recent(limit)
	resp := make([]ImportResponse, len(recent))
	for i, out := range recent {
		resp[i] = newImportResponse(out, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetImport returns the outcome of one import.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	out, err := s.lookupImport(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, newImportResponse(out, true))
}

// handleImportErrors downloads the error report of one import as CSV.
// When the report file could not be written at import time it is rendered
// from the retained outcome instead.
func (s *Server) handleImportErrors(w http.ResponseWriter, r *http.Request) {
	out, err := s.lookupImport(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if out.RejectedTotal() == 0 {
		s.respondError(w, r, fmt.Errorf("%w: import %s rejected no rows", core.ErrImportNotFound, out.ImportID), http.StatusNotFound)
		return
	}

	name := core.ErrorReportPrefix + out.ImportID.String() + ".csv"
	if out.ErrorReportPath != "" {
		name = filepath.Base(out.ErrorReportPath)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))

	if out.ErrorReportPath != "" {
		if f, err := os.Open(out.ErrorReportPath); err == nil {
			defer f.Close()
			if _, err := io.Copy(w, f); err != nil {
				logging.FromContext(r.Context()).Warn("error report download interrupted", "error", err)
			}
			return
		}
	}

	if err := core.WriteErrorReport(w, out.Rejected); err != nil {
		logging.FromContext(r.Context()).Warn("error report render failed", "error", err)
	}
}

func (s *Server) lookupImport(r *http.Request) (*core.Outcome, error) {
	raw := chi.URLParam(r, "importID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an import id", core.ErrImportNotFound, raw)
	}
	return s.history.Get(id)
}

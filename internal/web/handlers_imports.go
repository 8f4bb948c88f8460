package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/web/middleware"
)

// multipartMemory is how much of a form is buffered in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// formOverhead is allowed on top of the file size for the other form
// fields and multipart framing.
const formOverhead = 1 << 20

// formFile parses a multipart upload bounded by the import size limit
// and returns its "file" part.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, op string) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, core.ValidationErrorf(op, "file exceeds maximum size of %d bytes", s.cfg.Import.MaxFileSize)
		}
		return nil, nil, core.ValidationErrorf(op, "invalid multipart form: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, nil, core.ValidationErrorf(op, "no file provided")
	}
	return file, header, nil
}

// handleStartImport accepts a multipart upload with a file and one of
// profile, mapping (JSON) or kind, and returns the new session.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	const op = "start import"
	owner := middleware.OwnerFromContext(r.Context())

	file, header, err := s.formFile(w, r, op)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	defer file.Close()

	mapping, err := s.mappingFromForm(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	progress, err := s.service.StartImport(r.Context(), core.ImportRequest{
		OwnerID:  owner,
		FileName: header.Filename,
		Data:     file,
		Mapping:  mapping,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/imports/"+progress.SessionID)
	writeJSON(w, http.StatusCreated, progress)
}

// mappingFromForm resolves the column mapping: an inline JSON mapping wins
// over a named profile, which wins over the default mapping of a kind.
func (s *Server) mappingFromForm(r *http.Request) (core.ColumnMapping, error) {
	const op = "start import"

	if raw := r.FormValue("mapping"); raw != "" {
		var m core.ColumnMapping
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return core.ColumnMapping{}, core.ValidationErrorf(op, "invalid mapping JSON: %v", err)
		}
		if err := s.validate.Struct(m); err != nil {
			return core.ColumnMapping{}, core.ValidationErrorf(op, "invalid mapping: %s", describeValidation(err))
		}
		return m, nil
	}

	if name := r.FormValue("profile"); name != "" {
		m, ok := s.profiles.Get(name)
		if !ok {
			return core.ColumnMapping{}, core.ValidationErrorf(op, "unknown mapping profile %q", name)
		}
		return m, nil
	}

	if key := r.FormValue("kind"); key != "" {
		kind, ok := s.service.Kind(key)
		if !ok {
			return core.ColumnMapping{}, core.ValidationErrorf(op, "unknown entity kind %q", key)
		}
		return core.DefaultMapping(kind), nil
	}

	return core.ColumnMapping{}, core.ValidationErrorf(op, "one of mapping, profile or kind is required")
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.GetImportProgress(r.Context(), chi.URLParam(r, "sessionID"), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleListRows returns parsed rows as JSON, or as CSV with ?format=csv.
// ?errors=true limits the result to rows that failed parsing.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	onlyErrors, _ := strconv.ParseBool(r.URL.Query().Get("errors"))

	rows, err := s.service.ListRows(r.Context(), sessionID, middleware.OwnerFromContext(r.Context()), onlyErrors)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		s.writeRowsCSV(w, r, sessionID, rows)
		return
	}

	out := make([]rowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRowResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// writeRowsCSV exports rows with their source columns followed by an
// error column, so a user can fix failed rows and upload them again.
func (s *Server) writeRowsCSV(w http.ResponseWriter, r *http.Request, sessionID string, rows []core.ParsedRow) {
	columnSet := make(map[string]struct{})
	for _, row := range rows {
		for col := range row.RawFields {
			columnSet[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	filename := fmt.Sprintf("import_%s_rows_%s.csv", sessionID, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	header := append([]string{"line"}, columns...)
	header = append(header, "errors")
	if err := cw.Write(header); err != nil {
		logging.FromContext(r.Context()).Error("write csv header", "error", err)
		return
	}

	for _, row := range rows {
		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(row.Line))
		for _, col := range columns {
			record = append(record, row.RawFields[col])
		}
		msgs := make([]string, 0, len(row.ParseErrors))
		for _, e := range row.ParseErrors {
			msgs = append(msgs, e.Error())
		}
		record = append(record, strings.Join(msgs, "; "))
		if err := cw.Write(record); err != nil {
			logging.FromContext(r.Context()).Error("write csv row", "error", err)
			return
		}
	}
	cw.Flush()
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.service.GetSuggestedResolutions(r.Context(), chi.URLParam(r, "sessionID"), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []core.SuggestedResolution{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	const op = "resolve conflicts"

	var req resolveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 8<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, r, core.ValidationErrorf(op, "invalid request body: %v", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, r, core.ValidationErrorf(op, "invalid request: %s", describeValidation(err)))
		return
	}

	summary, err := s.service.ResolveConflicts(r.Context(), chi.URLParam(r, "sessionID"), middleware.OwnerFromContext(r.Context()), req.Resolutions)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Commit(r.Context(), chi.URLParam(r, "sessionID"), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.Cancel(r.Context(), chi.URLParam(r, "sessionID"), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleImportEvents streams progress as Server-Sent Events until the
// session reaches a final status or the client goes away. The event id is
// the processed row count, so a reconnecting client can pass lastEventId
// to skip updates it already has.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	owner := middleware.OwnerFromContext(r.Context())

	progress, err := s.service.GetImportProgress(r.Context(), sessionID, owner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	lastEventID := -1
	if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	}

	var lastSent time.Time
	send := func(p core.Progress) {
		if p.ProcessedCount <= lastEventID && !p.Status.Terminal() && !lastSent.IsZero() {
			return
		}
		if !p.UpdatedAt.After(lastSent) {
			return
		}
		data, _ := json.Marshal(p)
		fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.ProcessedCount, data)
		flusher.Flush()
		lastSent = p.UpdatedAt
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		send(progress)
		if progress.Status.Terminal() {
			fmt.Fprint(w, "event: complete\ndata: {}\n\n")
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		progress, err = s.service.GetImportProgress(r.Context(), sessionID, owner)
		if err != nil {
			// The session expired or was evicted mid-stream.
			fmt.Fprintf(w, "event: error\ndata: {\"kind\":%q}\n\n", core.KindOf(err))
			flusher.Flush()
			return
		}
	}
}

// describeValidation flattens validator errors into one readable line.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

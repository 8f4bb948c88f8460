package web

import (
	"net/http"
	"time"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

type healthResponse struct {
	Status  string                   `json:"status"`
	Time    time.Time                `json:"time"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Time:    time.Now().UTC(),
		Imports: s.service.Limiter().Status(),
	})
}

// handleListKinds lists the entity kinds rows can be imported into.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := s.service.Kinds()
	out := make([]kindResponse, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, toKindResponse(k))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.profiles.All())
}

type matchResponse struct {
	Header  []string            `json:"header"`
	Matches []core.ProfileMatch `json:"matches"`
}

// handleMatchMappings reads the header of an uploaded file and returns the
// mapping profiles that fit it.
func (s *Server) handleMatchMappings(w http.ResponseWriter, r *http.Request) {
	const op = "match mappings"

	file, header, err := s.formFile(w, r, op)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	defer file.Close()

	columns, err := s.service.ReadHeader(core.Source{FileName: header.Filename, Reader: file}, r.FormValue("sheet"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	matches := s.profiles.Match(columns)
	if matches == nil {
		matches = []core.ProfileMatch{}
	}
	writeJSON(w, http.StatusOK, matchResponse{Header: columns, Matches: matches})
}

package web

// errors.go renders engine errors as JSON.
//
// Every error is logged with its technical detail and the request id, and
// the client gets the mapped user message plus the taxonomy kind it can
// switch on. Messages written by the engine for validation, not found,
// forbidden and state errors are safe to show and are passed as detail.

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Kind   core.ErrorKind `json:"kind,omitempty"`
	Action string         `json:"action,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

var statusByKind = map[core.ErrorKind]int{
	core.KindValidation: http.StatusBadRequest,
	core.KindRow:        http.StatusUnprocessableEntity,
	core.KindNotFound:   http.StatusNotFound,
	core.KindForbidden:  http.StatusForbidden,
	core.KindState:      http.StatusConflict,
	core.KindStorage:    http.StatusServiceUnavailable,
	core.KindInternal:   http.StatusInternalServerError,
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if status, ok := statusByKind[core.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func showDetail(kind core.ErrorKind) bool {
	switch kind {
	case core.KindValidation, core.KindNotFound, core.KindForbidden, core.KindState:
		return true
	}
	return false
}

// respondError logs err and writes the mapped JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := core.KindOf(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"kind", kind,
		"code", msg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request error")
	} else {
		log.Warn("request rejected")
	}

	resp := ErrorResponse{Error: msg.Message, Code: msg.Code, Kind: kind, Action: msg.Action}
	var e *core.Error
	if showDetail(kind) && errors.As(err, &e) {
		resp.Detail = e.Message
	}
	if errors.Is(err, core.ErrTooManyImports) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, resp)
}

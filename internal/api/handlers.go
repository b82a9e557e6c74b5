package api

import (
	"encoding/json"
	"net/http"

	"drivemeta/internal/disk"
	"drivemeta/internal/model"
)

// errorBody matches the service's historical error contract.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Code: status, Message: message})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// respondErr maps an engine error onto the wire contract.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case disk.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation Failed")
	case disk.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Item not found")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req model.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Failed")
		return
	}

	if err := s.svc.ApplyImport(r.Context(), &req); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation Failed")
		return
	}

	if err := s.svc.DeleteNode(r.Context(), r.PathValue("id"), date); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// countingWriter tracks whether the subtree stream has produced output
// yet; once it has, the status line is already on the wire and errors
// can only be logged.
type countingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.wrote = true
	return c.ResponseWriter.Write(p)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.Header().Set("Content-Type", "application/json")

	cw := &countingWriter{ResponseWriter: w}
	if err := s.svc.StreamNode(r.Context(), id, cw); err != nil {
		if cw.wrote {
			s.logger.Error("subtree stream aborted", "id", id, "error", err)
			return
		}
		s.respondErr(w, err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := model.ParseDate(q.Get("dateStart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation Failed")
		return
	}
	end, err := model.ParseDate(q.Get("dateEnd"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation Failed")
		return
	}

	list, err := s.svc.GetNodeHistory(r.Context(), r.PathValue("id"), start, end)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation Failed")
		return
	}

	list, err := s.svc.GetUpdates(r.Context(), date)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, list)
}

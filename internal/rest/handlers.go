package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/kapilratnani/pgfire/internal/store"
)

// writeJSON writes v as the response body with the given status,
// matching the teacher's terse JSON-responder helpers in serv/.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a store sentinel error to the status table in spec §7.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"reason": "db with the same name already exists",
		})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"reason": "not found"})
	case errors.Is(err, store.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "invalid path"})
	case errors.Is(err, store.ErrClosedStore):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"reason": "store unavailable"})
	default:
		s.log.Errorw("unhandled store error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"reason": "internal error"})
	}
}

func opPath(r *http.Request) string {
	return chi.URLParam(r, "*")
}

type createDBRequest struct {
	DBName string `json:"db_name"`
}

func (s *Server) createDB(w http.ResponseWriter, r *http.Request) {
	var req createDBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DBName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "db_name is required"})
		return
	}

	if _, err := s.store.CreateLDB(r.Context(), req.DBName); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteDB(w http.ResponseWriter, r *http.Request) {
	var req createDBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DBName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "db_name is required"})
		return
	}

	ok, err := s.store.DeleteLDB(r.Context(), req.DBName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"reason": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	ldb := chi.URLParam(r, "ldb")
	value, err := s.store.Get(r.Context(), ldb, opPath(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) put(w http.ResponseWriter, r *http.Request) {
	ldb := chi.URLParam(r, "ldb")
	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "invalid json body"})
		return
	}

	echo, err := s.store.Put(r.Context(), ldb, opPath(r), value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, echo)
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	ldb := chi.URLParam(r, "ldb")
	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "invalid json body"})
		return
	}
	if _, ok := value.(map[string]any); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "patch body must be a json object"})
		return
	}

	echo, err := s.store.Patch(r.Context(), ldb, opPath(r), value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, echo)
}

func (s *Server) post(w http.ResponseWriter, r *http.Request) {
	ldb := chi.URLParam(r, "ldb")
	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "invalid json body"})
		return
	}

	result, err := s.store.Post(r.Context(), ldb, opPath(r), value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) del(w http.ResponseWriter, r *http.Request) {
	ldb := chi.URLParam(r, "ldb")
	ok, err := s.store.Delete(r.Context(), ldb, opPath(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

// headNotAllowed matches spec §6's HEAD row: the engine never supports
// it, regardless of path.
func (s *Server) headNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusMethodNotAllowed)
}

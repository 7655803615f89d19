package http

import (
	"net/http"

	"carteira/internal/core"
)

type categoryPayload struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type renamePayload struct {
	Type    string `json:"type"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type categorySetResponse struct {
	Income  []string `json:"income"`
	Expense []string `json:"expense"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	if set, ok := s.categoryCache.Get(owner); ok {
		writeJSON(w, http.StatusOK, categorySetResponse{Income: set.Income, Expense: set.Expense})
		return
	}

	set, err := s.categories.List(r.Context(), owner)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.categoryCache.Put(owner, set)
	writeJSON(w, http.StatusOK, categorySetResponse{Income: set.Income, Expense: set.Expense})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerID(r)
	if err := s.categories.Add(r.Context(), owner, core.TransactionType(payload.Type), payload.Name); err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.categoryCache.Delete(owner)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var payload renamePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerID(r)
	if err := s.categories.Rename(r.Context(), owner, core.TransactionType(payload.Type), payload.OldName, payload.NewName); err != nil {
		writeEngineError(w, r, err)
		return
	}

	// A rename rewrites transactions, so cached overviews are stale too.
	s.invalidateOwner(owner)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerID(r)
	if err := s.categories.Remove(r.Context(), owner, core.TransactionType(payload.Type), payload.Name); err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.categoryCache.Delete(owner)
	w.WriteHeader(http.StatusNoContent)
}

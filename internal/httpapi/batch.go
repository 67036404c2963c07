package httpapi

import (
	"encoding/json"
	"net/http"
)

// batchRequest is spec.md §6's POST /api/docs/batch payload: operation
// applies to every doc_id, with operation-specific params.
type batchRequest struct {
	Operation string          `json:"operation"`
	DocIDs    []string        `json:"doc_ids"`
	Params    json.RawMessage `json:"params"`
}

type batchResult struct {
	DocID   string `json:"doc_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleBatch always responds 200: per-document outcomes are reported in
// the body rather than via HTTP status, since a batch is a set of
// independent operations that can each succeed or fail (spec.md §6).
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var apply func(docID string) error
	switch req.Operation {
	case "delete":
		apply = func(docID string) error { return s.store.Delete(r.Context(), docID) }
	case "move":
		var params struct {
			NewPath string `json:"new_path"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeError(w, http.StatusBadRequest, "malformed params for move")
			return
		}
		apply = func(docID string) error {
			_, err := s.store.Move(r.Context(), docID, params.NewPath)
			return err
		}
	case "add_keywords":
		var params struct {
			Keywords []string `json:"keywords"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeError(w, http.StatusBadRequest, "malformed params for add_keywords")
			return
		}
		apply = func(docID string) error {
			_, err := s.store.AddKeywords(r.Context(), docID, params.Keywords)
			return err
		}
	case "remove_keywords":
		var params struct {
			Keywords []string `json:"keywords"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeError(w, http.StatusBadRequest, "malformed params for remove_keywords")
			return
		}
		apply = func(docID string) error {
			_, err := s.store.RemoveKeywords(r.Context(), docID, params.Keywords)
			return err
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown batch operation: "+req.Operation)
		return
	}

	results := make([]batchResult, 0, len(req.DocIDs))
	for _, id := range req.DocIDs {
		res := batchResult{DocID: id, Success: true}
		if err := apply(id); err != nil {
			res.Success = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, results)
}

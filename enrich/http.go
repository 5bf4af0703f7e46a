package enrich

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/chirp/ingest"
)

// Routes returns the HTTP surface of the enrichment service, mounted by
// the caller under its version prefix.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/documents/{id}/sentences", s.handleListSentences)
	r.Patch("/sentences/{id}", s.handlePatchSentence)
	r.Get("/sentences/{id}/shield-codes", s.handleSentenceShieldCodes)
	r.Post("/sentences/{id}/shield-codes/{codeID}", s.handleAttachShieldCode)
	r.Delete("/sentences/{id}/shield-codes/{codeID}", s.handleDetachShieldCode)
	r.Get("/shield-codes", s.handleListShieldCodes)

	return r
}

func (s *Service) handleListSentences(w http.ResponseWriter, r *http.Request) {
	sentences, err := s.ListSentences(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if sentences == nil {
		sentences = []SentenceView{}
	}
	writeJSON(w, http.StatusOK, sentences)
}

type patchSentenceRequest struct {
	RelevanceScore *float64  `json:"relevance_score,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

func (s *Service) handlePatchSentence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req patchSentenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RelevanceScore == nil && req.Embedding == nil {
		writeError(w, http.StatusBadRequest, errors.New("nothing to update"))
		return
	}

	if req.RelevanceScore != nil {
		if v := *req.RelevanceScore; v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, errors.New("relevance_score must be in [0,1]"))
			return
		}
		if err := s.SetRelevance(r.Context(), id, *req.RelevanceScore); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	if req.Embedding != nil {
		if err := s.SetEmbedding(r.Context(), id, req.Embedding); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "id": id})
}

func (s *Service) handleSentenceShieldCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.SentenceShieldCodes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if codes == nil {
		codes = []ShieldCode{}
	}
	writeJSON(w, http.StatusOK, codes)
}

func (s *Service) handleAttachShieldCode(w http.ResponseWriter, r *http.Request) {
	err := s.AttachShieldCode(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "codeID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (s *Service) handleDetachShieldCode(w http.ResponseWriter, r *http.Request) {
	err := s.DetachShieldCode(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "codeID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}

func (s *Service) handleListShieldCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.ListShieldCodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if codes == nil {
		codes = []ShieldCode{}
	}
	writeJSON(w, http.StatusOK, codes)
}

func statusFor(err error) int {
	if errors.Is(err, ingest.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/storage"
)

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question))

	answer, err := s.knowledge.Ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

type checkRequest struct {
	ItemCode  string  `json:"item_code"`
	UnitPrice float64 `json:"unit_price"`
	Currency  string  `json:"currency"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemCode == "" {
		s.respondError(w, http.StatusBadRequest, "item_code is required")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	result := s.checker.CheckLineItem(req.ItemCode, req.UnitPrice, req.Currency)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	records, err := s.storage.ListRecords(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.storage.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("get record failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetVendor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vendor, ok := s.refdata.GetVendor(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "vendor not found: "+id)
		return
	}
	s.respondJSON(w, http.StatusOK, vendor)
}

func (s *Server) handleGetPO(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	po, ok := s.refdata.GetPO(number)
	if !ok {
		s.respondError(w, http.StatusNotFound, "purchase order not found: "+number)
		return
	}
	s.respondJSON(w, http.StatusOK, po)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.storage.CountRecordsByStatus(ctx)
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var total int64
	statusCounts := make(map[string]int64, len(counts))
	for status, n := range counts {
		statusCounts[string(status)] = n
		total += n
	}

	resp := map[string]any{
		"documents":           total,
		"documents_by_status": statusCounts,
		"chunks":              chunkCount,
		"vector_index_size":   s.index.Size(),
		"config": map[string]any{
			"inbox_directory":      s.cfg.Inbox.Directory,
			"archive_directory":    s.cfg.Inbox.ArchiveDirectory,
			"embedding_dimensions": s.cfg.Embedding.Dimensions,
			"chunk_size":           s.cfg.Knowledge.ChunkSize,
			"chunk_overlap":        s.cfg.Knowledge.ChunkOverlap,
			"top_k":                s.cfg.Knowledge.TopK,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryInt reads a non-negative integer query parameter, falling back to def
// when absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

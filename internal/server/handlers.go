package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/pipeline"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/vector"
)

type storeList struct {
	Stores any   `json:"stores"`
	Total  int64 `json:"total"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var ov pipeline.Overrides
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.logger.Debug("build request", zap.String("name", ov.Name), zap.String("session_id", ov.SessionID))

	res, err := s.builder.TryBuild(r.Context(), ov)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("build failed", zap.Error(err))
		} else {
			s.logger.Info("build rejected", zap.Int("status", status), zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

// statusFor maps a build error to an HTTP status.
func statusFor(err error) int {
	var (
		cfgErr    *config.ConfigurationError
		svcErr    *embedding.ServiceError
		formatErr *embedding.ResponseFormatError
		countErr  *embedding.ResponseCountError
	)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &cfgErr), errors.Is(err, pipeline.ErrNoDocuments):
		return http.StatusBadRequest
	case errors.As(err, &svcErr), errors.As(err, &formatErr), errors.As(err, &countErr):
		return http.StatusBadGateway
	case pipeline.IsCancelled(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	ctx := r.Context()
	stores, err := s.catalog.ListStores(ctx, offset, limit)
	if err != nil {
		s.logger.Error("list stores failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.catalog.CountStores(ctx)
	if err != nil {
		s.logger.Error("count stores failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var list any = stores
	if stores == nil {
		list = []struct{}{}
	}
	s.respondJSON(w, http.StatusOK, storeList{Stores: list, Total: total})
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	name := chi.URLParam(r, "name")
	info, err := s.catalog.GetStore(r.Context(), name)
	if errors.Is(err, storage.ErrStoreNotFound) {
		s.respondError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		s.logger.Error("get store failed", zap.String("name", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"index_types": map[string]bool{
			string(vector.IndexTypeFlat):  true,
			string(vector.IndexTypeFAISS): vector.IsFAISSAvailable(),
		},
		"catalog": s.catalog != nil,
	}
	if s.formats != nil {
		resp["formats"] = s.formats()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

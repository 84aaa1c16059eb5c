package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"labelfix/internal/classifier"
	"labelfix/internal/pipeline"
	"labelfix/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrValidation), errors.Is(err, classifier.ErrUnsupportedModel):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	} else {
		s.log.Warn().Err(err).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody decodes an optional JSON body; an empty body leaves the
// request struct at its zero values.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImportDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name == "" || req.Source == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name and source are required"})
		return
	}

	dataset, err := s.engine.ImportDataset(req.Name, req.Source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataset)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if datasets == nil {
		datasets = []*store.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	dataset, err := s.store.GetDataset(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (s *Server) handleTrainBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	model, err := s.engine.TrainBaseline(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model)
}

func (s *Server) handleRunDetection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	var req struct {
		Iteration           int      `json:"iteration"`
		ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
		MaxSamples          int      `json:"max_samples,omitempty"`
		PriorityWeights     *struct {
			Confidence float64 `json:"confidence"`
			Anomaly    float64 `json:"anomaly"`
		} `json:"priority_weights,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	opts := pipeline.DetectionOptions{
		ConfidenceThreshold: req.ConfidenceThreshold,
		MaxSamples:          req.MaxSamples,
	}
	if req.PriorityWeights != nil {
		opts.ConfidenceWeight = &req.PriorityWeights.Confidence
		opts.AnomalyWeight = &req.PriorityWeights.Anomaly
	}

	report, err := s.engine.RunDetection(id, req.Iteration, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListDetections(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	iteration := -1
	if v := r.URL.Query().Get("iteration"); v != "" {
		iteration, err = strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid iteration"})
			return
		}
	}

	detections, err := s.store.DetectionsByDataset(id, iteration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if detections == nil {
		detections = []*store.Detection{}
	}
	writeJSON(w, http.StatusOK, detections)
}

func (s *Server) handleGenerateSuggestions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	var req struct {
		Iteration int `json:"iteration"`
		TopN      int `json:"top_n"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	created, err := s.engine.GenerateSuggestions(id, req.Iteration, req.TopN)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if created == nil {
		created = []*store.Suggestion{}
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	suggestions, err := s.store.SuggestionsByDataset(id, r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []*store.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleReviewSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid suggestion id"})
		return
	}
	var req struct {
		Status      string `json:"status"`
		CustomLabel *int   `json:"custom_label,omitempty"`
		Notes       string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	sug, err := s.engine.UpdateSuggestionStatus(id, req.Status, req.CustomLabel, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func (s *Server) handleApplyCorrections(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	var req struct {
		Iteration int `json:"iteration"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	report, err := s.engine.ApplyCorrections(id, req.Iteration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	report, err := s.engine.RetrainAndEvaluate(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCompareModels(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	cmp, err := s.engine.CompareModels(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	iteration := -1
	if v := r.URL.Query().Get("iteration"); v != "" {
		iteration, err = strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid iteration"})
			return
		}
	}

	detection, err := s.engine.DetectionStatsFor(id, iteration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	suggestions, err := s.engine.SuggestionStatsFor(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	feedback, err := s.engine.FeedbackStatsFor(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	corrections, err := s.engine.CorrectionSummaryFor(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detection":   detection,
		"suggestions": suggestions,
		"feedback":    feedback,
		"corrections": corrections,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dataset id"})
		return
	}
	path, err := s.engine.ExportCleaned(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

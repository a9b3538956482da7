package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

const maxPredictBodyBytes = 1 << 20

// InitializeResponse describes the model set held by the service
type InitializeResponse struct {
	Status        string                         `json:"status"`
	FeatureRanges map[string]models.FeatureStats `json:"feature_ranges"`
	Variables     []string                       `json:"variables"`
	Metadata      *models.ModelMetadata          `json:"metadata"`
}

// PredictResponse carries one prediction per variable and the input values
// the models were evaluated on
type PredictResponse struct {
	Status          string             `json:"status"`
	Predictions     models.Predictions `json:"predictions"`
	InputParameters map[string]float64 `json:"input_parameters"`
}

// HealthResponse reports liveness and readiness
type HealthResponse struct {
	Status    string `json:"status"`
	Trained   bool   `json:"trained"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"title":   s.title,
		"version": s.version,
		"trained": s.lifecycle.IsInitialized(),
	})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	st, err := s.lifecycle.Initialize(r.Context())
	if err != nil {
		s.logger.Error("Model initialization failed", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		s.writeInternalServerErrorResponse(w, publicMessage(err))
		return
	}
	s.writeJSONResponse(w, http.StatusOK, stateResponse(st))
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	st, err := s.lifecycle.Retrain(r.Context(), models.TriggerRetrain)
	if err != nil {
		s.logger.Error("Model retraining failed", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		s.writeInternalServerErrorResponse(w, publicMessage(err))
		return
	}
	s.writeJSONResponse(w, http.StatusOK, stateResponse(st))
}

func stateResponse(st *mlmodel.State) *InitializeResponse {
	variables := make([]string, 0, len(st.Stats))
	for _, v := range st.Variables {
		if _, ok := st.Stats[v]; ok {
			variables = append(variables, v)
		}
	}
	return &InitializeResponse{
		Status:        "success",
		FeatureRanges: st.Stats,
		Variables:     variables,
		Metadata:      st.Metadata,
	}
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.lifecycle.IsInitialized() {
		s.writeBadRequestResponse(w, mlmodel.ErrNotInitialized.Error())
		return
	}

	input, err := decodePredictionInput(http.MaxBytesReader(w, r.Body, maxPredictBodyBytes))
	if err != nil {
		s.writeBadRequestResponse(w, err.Error())
		return
	}

	result, err := s.lifecycle.Predict(input)
	switch {
	case errors.Is(err, mlmodel.ErrNotInitialized):
		s.writeBadRequestResponse(w, err.Error())
		return
	case err != nil:
		s.logger.Error("Prediction failed", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		s.writeInternalServerErrorResponse(w, publicMessage(err))
		return
	}

	s.writeJSONResponse(w, http.StatusOK, &PredictResponse{
		Status:          "success",
		Predictions:     result.Predictions,
		InputParameters: result.InputParameters,
	})
}

// decodePredictionInput reads a JSON object of variable name to number.
// Numeric strings are accepted and null values count as omitted.
func decodePredictionInput(body io.Reader) (models.PredictionInput, error) {
	var raw map[string]json.Number
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request body: %v", err)
	}

	input := make(models.PredictionInput, len(raw))
	for name, num := range raw {
		if num == "" {
			continue
		}
		v, err := strconv.ParseFloat(string(num), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %v", name, err)
		}
		input[name] = v
	}
	return input, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, &HealthResponse{
		Status:    "healthy",
		Trained:   s.lifecycle.IsInitialized(),
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "Training history is not enabled")
		return
	}

	runs, err := s.history.ListTrainingRuns(r.Context(), parseLimit(r, 20))
	if err != nil {
		s.logger.Error("Failed to list training runs", zap.Error(err))
		s.writeInternalServerErrorResponse(w, "Failed to list training runs")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

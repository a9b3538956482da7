package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
)

// writeJSONResponse writes a JSON response with the given status code.
// The body is encoded before the status is sent so an unencodable value
// becomes a 500 instead of an empty success.
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err), zap.Int("status", statusCode))
		statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error","status":"error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

// writeErrorResponse writes an error response with the given status code and message
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]any{
		"error":  message,
		"status": "error",
	})
}

// writeBadRequestResponse writes a 400 Bad Request response
func (s *Server) writeBadRequestResponse(w http.ResponseWriter, message string) {
	s.writeErrorResponse(w, http.StatusBadRequest, message)
}

// writeInternalServerErrorResponse writes a 500 Internal Server Error response
func (s *Server) writeInternalServerErrorResponse(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Internal Server Error"
	}
	s.writeErrorResponse(w, http.StatusInternalServerError, message)
}

// publicMessage maps a lifecycle error to the text sent to clients. The
// wrapped cause stays in the logs.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, mlmodel.ErrTrainingFailed):
		return mlmodel.ErrTrainingFailed.Error()
	case errors.Is(err, mlmodel.ErrConfiguration):
		return mlmodel.ErrConfiguration.Error()
	default:
		return "Internal Server Error"
	}
}

// parseLimit extracts and validates a limit parameter from the request, returning default if invalid
func parseLimit(r *http.Request, defaultLimit int) int {
	limitParam := r.URL.Query().Get("limit")
	if limitParam == "" {
		return defaultLimit
	}
	if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
		return limit
	}
	return defaultLimit
}

package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
)

// SuccessResponse is the envelope for every 2xx payload.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data}); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

// writeError maps an application error to its HTTP shape. Internal
// details never leave the process; they are logged here instead.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	appErr := errors.AsAppError(err)
	if appErr.Internal != nil {
		log.WithError(appErr.Internal).WithField("type", string(appErr.Type)).Error(appErr.Message)
	}

	var resp errors.ErrorResponse
	resp.Error.Type = appErr.Type
	resp.Error.Message = appErr.Message
	resp.Error.Details = appErr.Details
	resp.Error.RequestID = middleware.GetReqID(r.Context())
	resp.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.WithError(encErr).Error("failed to encode error response")
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("invalid request body", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return nil
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/logging"
)

type successEnvelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// respondData writes the success envelope.
func respondData(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload := successEnvelope{
		Success:    true,
		StatusCode: status,
		Data:       data,
		Message:    message,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}

// respondError is the boundary error responder. It normalizes any error into
// the single apierror kind, serializes the error envelope, and logs the
// retained cause which is never sent to the client.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr := apierror.From(err)

	logger := logging.FromContext(ctx)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("request failed", "status", apiErr.StatusCode, "message", apiErr.Message, "cause", apiErr.Cause)
	} else {
		logger.Warn("request rejected", "status", apiErr.StatusCode, "message", apiErr.Message, "cause", apiErr.Cause)
	}

	subErrors := apiErr.Errors
	if subErrors == nil {
		subErrors = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)

	payload := errorEnvelope{
		Success: false,
		Message: apiErr.Message,
		Errors:  subErrors,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode error body", "status", apiErr.StatusCode, "error", err)
	}
}

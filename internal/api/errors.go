// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/target"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	RequestID string   `json:"request_id,omitempty"`
	Command   string   `json:"command,omitempty"`
	ExitCode  *int     `json:"exit_code,omitempty"`
	Output    []string `json:"output,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().Err(err).Int("status", code).Msg("failed to encode JSON response")
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// statusFor maps domain errors onto HTTP statuses and stable codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, target.ErrUnknownTarget):
		return http.StatusNotFound, "unknown_target"
	case errors.Is(err, capture.ErrUnknownCapturer):
		return http.StatusNotFound, "unknown_capturer"
	case errors.Is(err, capture.ErrInvalidOperation):
		return http.StatusBadRequest, "invalid_operation"
	case errors.Is(err, capture.ErrNotCapturing):
		return http.StatusConflict, "not_capturing"
	case errors.Is(err, target.ErrAlreadyOwned):
		return http.StatusConflict, "already_owned"
	case errors.Is(err, capture.ErrNotOwned):
		return http.StatusForbidden, "not_owned"
	case errors.Is(err, capture.ErrLocked):
		return http.StatusLocked, "locked"
	case errors.Is(err, capture.ErrLaunchFailed):
		return http.StatusBadGateway, "launch_failed"
	case errors.Is(err, capture.ErrCaptureFailed):
		return http.StatusBadGateway, "capture_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError renders err, attaching command diagnostics when present.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: log.RequestIDFromContext(r.Context()),
	}
	var cerr *capture.CommandError
	if errors.As(err, &cerr) {
		resp.Command = strings.Join(cerr.Args, " ")
		exit := cerr.ExitCode
		resp.ExitCode = &exit
		resp.Output = cerr.Output
	}
	if status == http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldPath, r.URL.Path).Msg("request failed")
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

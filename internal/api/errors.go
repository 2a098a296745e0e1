/*-------------------------------------------------------------------------
 *
 * errors.go
 *    API error types and JSON response helpers for AgentGate
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/api/errors.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"net/http"
)

/* APIError carries an HTTP status and the failure behind it */
type APIError struct {
	Code      int
	Message   string
	Err       error
	RequestID string
}

/* ErrorResponse is the JSON error body */
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

var (
	ErrUnauthorized = NewError(http.StatusUnauthorized, "unauthorized", nil)
	ErrNotFound     = NewError(http.StatusNotFound, "not found", nil)
)

/* NewError creates an APIError */
func NewError(code int, message string, err error) *APIError {
	return &APIError{Code: code, Message: message, Err: err}
}

/* WrapError attaches a request ID to an APIError */
func WrapError(err *APIError, requestID string) *APIError {
	return &APIError{Code: err.Code, Message: err.Message, Err: err.Err, RequestID: requestID}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err *APIError) {
	response := ErrorResponse{
		Error: err.Message,
		Code:  err.Code,
	}
	if err.Err != nil {
		response.Message = err.Err.Error()
	}
	if err.RequestID != "" {
		w.Header().Set("X-Request-ID", err.RequestID)
	}
	respondJSON(w, err.Code, response)
}

// Package handlers provides HTTP handler implementations for the public API.
//
// Every response, success or failure, uses the same envelope:
//
//	{ "success": true,  "data": {...}, "request_id": "..." }
//	{ "success": false, "error": "...", "code": "not_found", "request_id": "..." }
//
// fail() centralizes error formatting and logs 5xx responses with the
// request-scoped logger; ok() wraps a payload.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callcenter-backend/internal/http/middleware"
)

// Envelope is the response shape of every endpoint.
type Envelope struct {
	Success bool `json:"success" example:"true"`
	// Data is present on success.
	Data any `json:"data,omitempty"`
	// Error is a human-readable message, present on failure.
	Error string `json:"error,omitempty" example:"call not found or not in a valid state"`
	// Code is a stable machine-readable error code (see errors.go).
	Code string `json:"code,omitempty" example:"call_not_found"`
	// RequestID correlates server logs with client errors.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// ErrorResponse documents the failure form of Envelope for OpenAPI.
type ErrorResponse struct {
	Success   bool   `json:"success" example:"false"`
	Error     string `json:"error" example:"call not found"`
	Code      string `json:"code" example:"not_found"`
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with the error envelope. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, Envelope{
		Success:   false,
		Error:     msg,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope around data.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
	})
}

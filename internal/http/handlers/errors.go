// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: dashboard clients branch on them.
// Generic codes mirror HTTP status semantics; the domain codes below them
// distinguish failures the status alone cannot convey.
//
// Example response:
//
//	{
//	  "success": false,
//	  "error": "call not found or not in a valid state",
//	  "code": "call_not_found",
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeInvalidPayload   = "invalid_payload"
	ErrCodeMissingConv      = "missing_conversation_id"
	ErrCodeInvalidCallID    = "invalid_call_id"
	ErrCodeInvalidAgent     = "invalid_agent"
	ErrCodeCallNotFound     = "call_not_found"
	ErrCodeWebhookFailed    = "webhook_failed"
	ErrCodeActionFailed     = "action_failed"
	ErrCodeQueryFailed      = "query_failed"
)

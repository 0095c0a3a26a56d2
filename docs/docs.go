// Package docs registers the OpenAPI document served at /swagger.
//
// Code generated by swaggo/swag from the handler annotations. Regenerate with
// `swag init -g cmd/server/main.go -o docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/calls/active": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Active calls",
                "operationId": "activeCalls",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CallListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/waiting": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Waiting queue",
                "operationId": "waitingCalls",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CallListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Call status board",
                "operationId": "callStatus",
                "responses": {
                    "200": {"description": "OK", "headers": {"X-Cache": {"type": "string", "description": "HIT or MISS"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/dashboard": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Operator dashboard",
                "operationId": "callDashboard",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Call statistics",
                "operationId": "callStats",
                "parameters": [
                    {"type": "integer", "default": 24, "maximum": 720, "minimum": 1, "description": "Window in hours", "name": "hours", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/calls/history": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Call history (paginated)",
                "operationId": "callHistory",
                "parameters": [
                    {"type": "string", "description": "active | waiting | ended | all", "name": "status", "in": "query"},
                    {"type": "string", "description": "Baja | Normal | Alta | Urgencia | all", "name": "priority", "in": "query"},
                    {"type": "string", "description": "Case-insensitive match on patient name, phone or agent", "name": "search", "in": "query"},
                    {"type": "integer", "default": 50, "maximum": 200, "minimum": 1, "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "minimum": 0, "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CallHistoryResponse"}}}
            }
        },
        "/calls/storage-stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Storage statistics",
                "operationId": "storageStats",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/calls/{id}/history": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calls"],
                "summary": "Conversation timeline",
                "operationId": "conversationHistory",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "No events for this conversation", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/{id}/transfer": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Actions"],
                "summary": "Transfer a call",
                "operationId": "transferCall",
                "parameters": [
                    {"type": "integer", "minimum": 1, "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.AgentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ActionResponse"}},
                    "404": {"description": "Call not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/{id}/attend": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Actions"],
                "summary": "Attend a waiting call",
                "operationId": "attendCall",
                "parameters": [
                    {"type": "integer", "minimum": 1, "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.AgentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ActionResponse"}},
                    "404": {"description": "Call not found or not waiting", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/{id}/hold": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Actions"],
                "summary": "Put an active call on hold",
                "operationId": "holdCall",
                "parameters": [
                    {"type": "integer", "minimum": 1, "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ActionResponse"}},
                    "404": {"description": "Call not found or not active", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/calls/{id}/waiting": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Actions"],
                "summary": "Move a call to the waiting queue",
                "operationId": "moveToWaiting",
                "parameters": [
                    {"type": "integer", "minimum": 1, "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ActionResponse"}},
                    "404": {"description": "Call not found or already ended", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/webhooks/elevenlabs/call-started": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhooks"],
                "summary": "Provider webhook: call started",
                "operationId": "callStartedWebhook",
                "parameters": [
                    {"type": "string", "name": "ElevenLabs-Signature", "in": "header", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid signature", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Body too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/webhooks/elevenlabs/call-ended": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhooks"],
                "summary": "Provider webhook: call ended",
                "operationId": "callEndedWebhook",
                "parameters": [
                    {"type": "string", "name": "ElevenLabs-Signature", "in": "header", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid payload or missing conversation_id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Invalid signature", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Body too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ActionResponse": {
            "type": "object",
            "properties": {
                "action": {"type": "string", "example": "transfer"},
                "call_id": {"type": "integer", "example": 42},
                "message": {"type": "string", "example": "call transferred"}
            }
        },
        "handlers.AgentRequest": {
            "type": "object",
            "properties": {"agent_name": {"type": "string", "example": "Dra. Pérez"}}
        },
        "handlers.CallHistoryResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"type": "object"}},
                "limit": {"type": "integer", "example": 50},
                "offset": {"type": "integer", "example": 0},
                "total": {"type": "integer", "example": 128}
            }
        },
        "handlers.CallListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer", "example": 3},
                "items": {"type": "array", "items": {"type": "object"}}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "error": {"type": "string", "example": "call not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "success": {"type": "boolean", "example": false}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Call Center Backend API",
	Description:      "Call lifecycle tracking for the medical call center: provider webhooks, dashboard projections and operator actions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

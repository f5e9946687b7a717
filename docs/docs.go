// Package docs registers the ops API swagger document with swag.
// Regenerate with `swag init -g cmd/notifier/main.go` after changing handler
// annotations.
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
        "/": {
            "get": {
                "description": "Returns service name and status.",
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Service root info",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Returns basic health status and timestamp.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/health/db": {
            "get": {
                "description": "Verifies Postgres connectivity.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Database health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/scheduler/status": {
            "get": {
                "description": "Returns scheduler state, cycle count, last cycle counters and next tick.",
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Scheduler status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/notifications.Status"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/scheduler/trigger": {
            "post": {
                "description": "Requests an immediate cycle. Requests made while one is already pending coalesce.",
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Trigger a cycle",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/scheduler/due": {
            "get": {
                "description": "Lists users whose local preferred hour is now and who have not been sent a tip today.",
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Preview due users",
                "parameters": [
                    {"type": "string", "description": "RFC3339 instant to evaluate instead of now", "name": "at", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "notifications.CycleStats": {
            "type": "object",
            "properties": {
                "started_at": {"type": "string"},
                "duration_ns": {"type": "integer"},
                "lock_acquired": {"type": "boolean"},
                "current_hour": {"type": "integer"},
                "candidates": {"type": "integer"},
                "due": {"type": "integer"},
                "sent": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"}
            }
        },
        "notifications.Status": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "cycles": {"type": "integer"},
                "last_run_at": {"type": "string"},
                "next_run_at": {"type": "string"},
                "last_cycle": {"$ref": "#/definitions/notifications.CycleStats"},
                "last_error": {"type": "string"}
            }
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Wellness Notification Service",
	Description:      "Ops endpoints for the daily wellness tip scheduler.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

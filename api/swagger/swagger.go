package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Money Quiz Routing Gateway",
        "description": "Hybrid traffic routing and rollback control for the Money Quiz migration",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Routing", "description": "Public action dispatch"},
        {"name": "Authentication", "description": "Operator login"},
        {"name": "Flags", "description": "Per-action rollout fractions"},
        {"name": "Monitoring", "description": "Health and traffic views"},
        {"name": "Rollback", "description": "Emergency rollback control"},
        {"name": "Reports", "description": "Weekly migration reports"}
    ],
    "paths": {
        "/route/{action}": {
            "post": {
                "tags": ["Routing"],
                "summary": "Dispatch a quiz action",
                "parameters": [
                    {"name": "action", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RouterResult"}},
                    "502": {"description": "All handlers failed", "schema": {"$ref": "#/definitions/RouterResult"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate operator",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/flags": {
            "get": {
                "tags": ["Flags"],
                "summary": "List rollout flags",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Flags"],
                "summary": "Set the rollout fraction for an action",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateFlagRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid fraction", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monitor/health": {
            "get": {
                "tags": ["Monitoring"],
                "summary": "Current health classification",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monitor/traffic": {
            "get": {
                "tags": ["Monitoring"],
                "summary": "Request share per system",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "hours", "in": "query", "type": "integer", "default": 24}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monitor/errors": {
            "get": {
                "tags": ["Monitoring"],
                "summary": "Per-action error rates, worst first",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "hours", "in": "query", "type": "integer", "default": 24}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/monitor/performance": {
            "get": {
                "tags": ["Monitoring"],
                "summary": "Latency comparison per action and system",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "hours", "in": "query", "type": "integer", "default": 24}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rollback": {
            "post": {
                "tags": ["Rollback"],
                "summary": "Execute a manual emergency rollback",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Executed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Rollback already active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rollback/clear": {
            "post": {
                "tags": ["Rollback"],
                "summary": "Clear the rollback state",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Cleared", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Cooldown active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rollback/history": {
            "get": {
                "tags": ["Rollback"],
                "summary": "List rollback events, newest first",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer", "default": 10}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rollback/recovery": {
            "get": {
                "tags": ["Rollback"],
                "summary": "Report whether the rollback state may be cleared",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/weekly": {
            "get": {
                "tags": ["Reports"],
                "summary": "Weekly migration metrics",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "week", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Reports"],
                "summary": "Generate a weekly report artifact",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "week", "in": "query", "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a generated report by signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RouterResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "output": {"type": "string"},
                "error": {"type": "string"},
                "system": {"type": "string", "enum": ["modern", "legacy", "error"]},
                "_meta": {"$ref": "#/definitions/RouterMeta"}
            }
        },
        "RouterMeta": {
            "type": "object",
            "properties": {
                "routed_by": {"type": "string"},
                "duration": {"type": "number"},
                "fallback": {"type": "boolean"},
                "fallback_reason": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "UpdateFlagRequest": {
            "type": "object",
            "properties": {
                "action": {"type": "string"},
                "fraction": {"type": "number", "minimum": 0, "maximum": 1}
            },
            "required": ["action", "fraction"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

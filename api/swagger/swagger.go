package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "StudySpot Check-in API",
        "description": "Coworking study space check-in and membership payment backend",
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
        {"name": "Checkin", "description": "Session toggle and attendance status"},
        {"name": "Students", "description": "Student directory and access codes"},
        {"name": "Plans", "description": "Membership plan catalog"},
        {"name": "Payments", "description": "Plan purchases and confirmations"},
        {"name": "Webhooks", "description": "Gateway notifications"},
        {"name": "Reports", "description": "Visit history exports"},
        {"name": "Authentication", "description": "Staff login"}
    ],
    "paths": {
        "/checkin": {
            "post": {
                "tags": ["Checkin"],
                "summary": "Toggle check-in state",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ToggleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid access code"},
                    "404": {"description": "Unknown access code"}
                }
            }
        },
        "/checkin/{code}": {
            "get": {
                "tags": ["Checkin"],
                "summary": "Current attendance state",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown access code"}
                }
            }
        },
        "/students": {
            "post": {
                "tags": ["Students"],
                "summary": "Register a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload"}
                }
            },
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "hasPlan", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{code}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get a student by access code",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/students/{code}/certificate": {
            "put": {
                "tags": ["Students"],
                "summary": "Update the enrollment certificate flag",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CertificateRequest"}}
                ],
                "responses": {
                    "204": {"description": "Updated"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/plans": {
            "get": {
                "tags": ["Plans"],
                "summary": "List active plans",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments": {
            "post": {
                "tags": ["Payments"],
                "summary": "Request a plan purchase",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PurchaseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload"},
                    "404": {"description": "Unknown student or plan"}
                }
            }
        },
        "/payments/{id}": {
            "get": {
                "tags": ["Payments"],
                "summary": "Get a payment record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/payments/{id}/preference": {
            "post": {
                "tags": ["Payments"],
                "summary": "Create a gateway checkout preference",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "409": {"description": "Payment no longer pending"},
                    "502": {"description": "Gateway error"}
                }
            }
        },
        "/payments/{id}/confirm": {
            "post": {
                "tags": ["Payments"],
                "summary": "Confirm an in-person payment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "409": {"description": "Payment already failed"}
                }
            }
        },
        "/webhooks/midtrans": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Midtrans payment notification",
                "responses": {
                    "200": {"description": "Acknowledged"}
                }
            }
        },
        "/reports/visits": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export visit history",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "code", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate staff",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        }
    },
    "definitions": {
        "ToggleRequest": {
            "type": "object",
            "required": ["access_code"],
            "properties": {
                "access_code": {"type": "string", "example": "48213"}
            }
        },
        "RegisterRequest": {
            "type": "object",
            "required": ["full_name", "email", "phone", "institution", "career"],
            "properties": {
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "institution": {"type": "string"},
                "career": {"type": "string"}
            }
        },
        "CertificateRequest": {
            "type": "object",
            "properties": {
                "submitted": {"type": "boolean"}
            }
        },
        "PurchaseRequest": {
            "type": "object",
            "required": ["access_code", "plan_id", "method"],
            "properties": {
                "access_code": {"type": "string"},
                "plan_id": {"type": "string"},
                "method": {"type": "string", "enum": ["gateway", "in_person"]}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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

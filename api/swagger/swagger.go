package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Migration Estimator API",
        "description": "Slack to Teams migration pricing, submission workflow and audit trail",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Estimates", "description": "Pricing calculator"},
        {"name": "Submissions", "description": "Estimate requests and sales workflow"},
        {"name": "Audit", "description": "Tamper-evident audit log"},
        {"name": "Users", "description": "User and role management"},
        {"name": "Reports", "description": "PDF and CSV estimate reports"},
        {"name": "Admin", "description": "Batch recompute and operational metrics"}
    ],
    "paths": {
        "/estimates": {
            "post": {
                "tags": ["Estimates"],
                "summary": "Calculate a migration estimate",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EstimateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/estimates/addons": {
            "get": {
                "tags": ["Estimates"],
                "summary": "List add-on services and weekly rates",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/estimates/addons/quote": {
            "post": {
                "tags": ["Estimates"],
                "summary": "Price add-ons for a number of weeks",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddonQuoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions": {
            "get": {
                "tags": ["Submissions"],
                "summary": "List submissions visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "ownerId", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Submissions"],
                "summary": "Create a submission",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSubmissionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Get a submission",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/status": {
            "patch": {
                "tags": ["Submissions"],
                "summary": "Transition submission status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Illegal transition or stale update", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/comments": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Append a sales comment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CommentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/recompute": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Recompute the stored estimate",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/audit": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Audit history of a submission",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/report": {
            "post": {
                "tags": ["Reports"],
                "summary": "Render an estimate report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a rendered report",
                "security": [],
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Report file"},
                    "404": {"description": "Expired or unknown link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "Search audit entries",
                "parameters": [
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "entityId", "in": "query", "type": "string"},
                    {"name": "actorId", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/stats": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit activity counts",
                "parameters": [
                    {"name": "days", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Export matching audit entries as CSV",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV file"}
                }
            }
        },
        "/audit/{entity}/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit trail for an entity",
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/{entity}/{id}/verify": {
            "get": {
                "tags": ["Audit"],
                "summary": "Verify the hash chain for an entity",
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "parameters": [
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/me": {
            "get": {
                "tags": ["Users"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get user",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update user role or status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateUserRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Users"],
                "summary": "Deactivate user",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deactivated"}
                }
            }
        },
        "/admin/recompute": {
            "post": {
                "tags": ["Admin"],
                "summary": "Queue a recompute of every submission",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/metrics": {
            "get": {
                "tags": ["Admin"],
                "summary": "Operational counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "EstimateRequest": {
            "type": "object",
            "properties": {
                "messageVolume": {"type": "number"},
                "addonServices": {"type": "array", "items": {"type": "string"}},
                "dataPrepSize": {"type": "string", "enum": ["none", "small", "medium", "large"]}
            }
        },
        "AddonQuoteRequest": {
            "type": "object",
            "required": ["addonServices", "weeks"],
            "properties": {
                "addonServices": {"type": "array", "items": {"type": "string"}},
                "weeks": {"type": "integer"}
            }
        },
        "CustomerInfo": {
            "type": "object",
            "properties": {
                "companyName": {"type": "string"},
                "contactName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "projectLead": {"type": "string"},
                "itContact": {"type": "string"},
                "roughBudget": {"type": "string", "example": "90000.00"},
                "idealTimeline": {"type": "string"},
                "totalLicenses": {"type": "integer"},
                "collaborationScope": {"type": "string", "enum": ["Internal only", "External via Slack Connect", "Both"]},
                "otherCollabTools": {"type": "array", "items": {"type": "string"}}
            }
        },
        "TechnicalInputs": {
            "type": "object",
            "properties": {
                "messageVolume": {"type": "number"},
                "addonServices": {"type": "array", "items": {"type": "string"}},
                "dataPrepSize": {"type": "string"},
                "licenseTier": {"type": "string"},
                "adIntegration": {"type": "boolean"},
                "customApps": {"type": "array", "items": {"type": "string"}},
                "thirdPartyApps": {"type": "array", "items": {"type": "string"}},
                "integrations": {"type": "string"}
            }
        },
        "CreateSubmissionRequest": {
            "type": "object",
            "properties": {
                "customerInfo": {"$ref": "#/definitions/CustomerInfo"},
                "technicalInputs": {"$ref": "#/definitions/TechnicalInputs"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "required": ["status", "expectedUpdatedAt"],
            "properties": {
                "status": {"type": "string", "enum": ["New", "Contacted", "In Negotiation", "Closed Won", "Closed Lost"]},
                "expectedUpdatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "CommentRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "text": {"type": "string"}
            }
        },
        "ReportRequest": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "enum": ["pdf", "csv"]}
            }
        },
        "CreateUserRequest": {
            "type": "object",
            "required": ["email", "full_name", "role"],
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["end_user", "sales", "admin"]},
                "active": {"type": "boolean"}
            }
        },
        "UpdateUserRequest": {
            "type": "object",
            "required": ["full_name", "role"],
            "properties": {
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["end_user", "sales", "admin"]},
                "active": {"type": "boolean"}
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

// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/grts/main.go
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
        "/user/auth/register": {"post": {"tags": ["auth"], "summary": "Register an officer (the first account becomes the manager); the response carries the role", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}},
        "/user/auth/login": {"post": {"tags": ["auth"], "summary": "Log in", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/user/auth/refresh": {"post": {"tags": ["auth"], "summary": "Refresh tokens", "responses": {"200": {"description": "OK"}}}},
        "/webhooks/wex": {"post": {"tags": ["wex"], "summary": "WEX transaction webhook", "responses": {"200": {"description": "OK"}, "401": {"description": "Bad signature"}}}},
        "/internal/wex/poll": {"post": {"tags": ["wex"], "summary": "Poll WEX transactions", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}, "400": {"description": "Partial import: imported count plus error"}, "502": {"description": "Upstream failure"}}}},
        "/api/v1/me": {"get": {"tags": ["users"], "summary": "Current user", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/receipts": {
            "get": {"tags": ["receipts"], "summary": "List receipts", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["receipts"], "summary": "Upload a receipt", "consumes": ["multipart/form-data"], "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}, "413": {"description": "Too large"}}}
        },
        "/api/v1/receipts/ocr": {"post": {"tags": ["receipts"], "summary": "Draft receipt fields from OCR text", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}, "503": {"description": "OCR disabled"}}}},
        "/api/v1/cards": {
            "get": {"tags": ["cards"], "summary": "Caller's fuel cards", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["cards"], "summary": "Register a fuel card", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/cards/{last4}": {"delete": {"tags": ["cards"], "summary": "Remove a fuel card", "security": [{"Bearer": []}], "responses": {"204": {"description": "No Content"}}}},
        "/api/v1/reconcile/sweep": {"post": {"tags": ["reconcile"], "summary": "Run a reconciliation sweep", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}, "400": {"description": "Negative or malformed tolerance"}}}},
        "/api/v1/reconcile/legacy-missing": {"post": {"tags": ["reconcile"], "summary": "Flag missing receipts with a flat tolerance", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reconcile/pending": {"get": {"tags": ["reconcile"], "summary": "Placeholders awaiting review", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reconcile/{id}/candidates": {"get": {"tags": ["reconcile"], "summary": "Match candidates for a placeholder", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reconcile/{id}/resolve-missing": {"post": {"tags": ["reconcile"], "summary": "Acknowledge a missing receipt", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}}},
        "/api/v1/reconcile/{id}": {"delete": {"tags": ["reconcile"], "summary": "Discard a placeholder and dismiss its transaction", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reconcile/{id}/link-receipt": {"post": {"tags": ["reconcile"], "summary": "Link a placeholder to a real receipt", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reconcile/{id}/link-transaction": {"post": {"tags": ["reconcile"], "summary": "Link a receipt to a transaction", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/transactions": {"get": {"tags": ["reports"], "summary": "List card transactions", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/daily": {"get": {"tags": ["reports"], "summary": "Daily reconciliation series", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/anomalies": {"get": {"tags": ["reports"], "summary": "Days with unusual spend or deficit", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/summary": {"get": {"tags": ["reports"], "summary": "Totals for the window", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/leaderboard": {"get": {"tags": ["reports"], "summary": "Officers ranked by missing receipts", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/merchants": {"get": {"tags": ["reports"], "summary": "Top merchants by card spend", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/tasks": {"get": {"tags": ["reports"], "summary": "Caller's dates that still need receipts", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/export.xlsx": {"get": {"tags": ["reports"], "summary": "Daily series as a spreadsheet", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/reports/export.csv": {"get": {"tags": ["reports"], "summary": "Daily series as CSV", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/notify": {"post": {"tags": ["users"], "summary": "Email an officer", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}, "502": {"description": "Bad Gateway"}}}},
        "/api/v1/users": {"get": {"tags": ["users"], "summary": "List users", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/users/{id}/role": {"put": {"tags": ["users"], "summary": "Change a user's role", "security": [{"Bearer": []}], "responses": {"204": {"description": "No Content"}}}}
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "GRTS API",
	Description:      "Fuel receipt tracking and WEX card reconciliation",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

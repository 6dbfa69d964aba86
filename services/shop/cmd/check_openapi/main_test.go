package main

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pearl/services/shop/internal/server"
)

func TestShippedDocumentMatchesRouter(t *testing.T) {
	doc, err := loadDoc("../../../../api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	routes, err := server.Routes()
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if err := check(doc, routes); err != nil {
		t.Fatalf("check: %v", err)
	}
}

const miniDoc = `
paths:
  /healthz:
    get: {}
  /old:
    parameters: []
    delete: {}
components:
  schemas:
    ErrorResponse:
      type: object
      required: [error, code]
      properties:
        error: {type: string}
        code: {type: string}
        requestId: {type: string}
        details:
          type: array
          items: {$ref: '#/components/schemas/ErrorDetail'}
    ErrorDetail:
      type: object
      required: [field, reason]
      properties:
        field: {type: string}
        reason: {type: string}
`

func TestCheckReportsRouteDrift(t *testing.T) {
	var doc openAPIDoc
	if err := yaml.Unmarshal([]byte(miniDoc), &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	routes := []server.Route{{Method: "GET", Pattern: "/healthz"}, {Method: "POST", Pattern: "/orders"}}
	err := check(doc, routes)
	if err == nil {
		t.Fatalf("expected drift error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "POST /orders") || !strings.Contains(msg, "DELETE /old") {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(msg, "PARAMETERS") {
		t.Fatalf("non-method keys must be ignored: %v", err)
	}

	doc.Components.Schemas["ErrorDetail"] = schema{Type: "object", Required: []string{"reason"}}
	if err := check(doc, routes[:1]); err == nil || !strings.Contains(err.Error(), "field") {
		t.Fatalf("expected ErrorDetail field error, got %v", err)
	}
}

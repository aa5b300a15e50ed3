// Package validate checks request bodies and generated content against JSON
// Schemas before they reach the service layer.
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBase = "https://policyforge.schemas.local/"

const generateSchema = `{
  "type": "object",
  "required": ["topic"],
  "properties": {
    "topic": {"type": "string", "minLength": %d}
  }
}`

const blockSchema = `{
  "type": "object",
  "required": ["id", "type", "content"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "type": {"enum": ["heading", "paragraph", "list"]},
    "title": {"type": "string"},
    "content": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    },
    "format": {"enum": ["plain", "inline"]},
    "order": {"type": "number"}
  }
}`

const updateSchema = `{
  "type": "object",
  "required": ["blocks"],
  "properties": {
    "blocks": {
      "type": "array",
      "items": {"$ref": "block.schema.json"}
    }
  }
}`

const exportSchema = `{
  "type": "object",
  "properties": {
    "format": {"type": "string"}
  }
}`

// generatedSchema is deliberately loose: types may be aliases and fields
// may be missing, the canonicalizer repairs both.
const generatedSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": ["string", "null"]},
      "type": {"type": ["string", "null"]},
      "title": {"type": ["string", "null"]},
      "content": {
        "oneOf": [
          {"type": "string"},
          {"type": "array", "items": {"type": ["string", "number", "boolean"]}},
          {"type": "null"}
        ]
      }
    }
  }
}`

// Issue is one validation failure at a JSON pointer into the input.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error lists every issue found in one input.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Path + ": " + issue.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type Validator struct {
	generate  *jsonschema.Schema
	update    *jsonschema.Schema
	export    *jsonschema.Schema
	generated *jsonschema.Schema
}

// New compiles the request schemas. minTopicLength is the shortest topic a
// generate request may carry.
func New(minTopicLength int) (*Validator, error) {
	if minTopicLength < 1 {
		minTopicLength = 1
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	resources := map[string]string{
		"generate.schema.json":  fmt.Sprintf(generateSchema, minTopicLength),
		"block.schema.json":     blockSchema,
		"update.schema.json":    updateSchema,
		"export.schema.json":    exportSchema,
		"generated.schema.json": generatedSchema,
	}
	for name, schema := range resources {
		if err := c.AddResource(schemaBase+name, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("schema load failed: %s: %w", name, err)
		}
	}

	v := &Validator{}
	for name, dst := range map[string]**jsonschema.Schema{
		"generate.schema.json":  &v.generate,
		"update.schema.json":    &v.update,
		"export.schema.json":    &v.export,
		"generated.schema.json": &v.generated,
	} {
		compiled, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("schema compile failed: %s: %w", name, err)
		}
		*dst = compiled
	}
	return v, nil
}

// GenerateRequest validates {topic}.
func (v *Validator) GenerateRequest(body any) error { return check(v.generate, body) }

// UpdateRequest validates {blocks: [...]}.
func (v *Validator) UpdateRequest(body any) error { return check(v.update, body) }

// ExportRequest validates an optional {format} body.
func (v *Validator) ExportRequest(body any) error { return check(v.export, body) }

// GeneratedBlocks validates a block array returned by a generation backend.
func (v *Validator) GeneratedBlocks(blocks any) error { return check(v.generated, blocks) }

func check(schema *jsonschema.Schema, v any) error {
	err := schema.Validate(v)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &Error{Issues: []Issue{{Path: "", Message: err.Error()}}}
	}
	issues := leafIssues(verr, nil)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return &Error{Issues: issues}
}

func leafIssues(e *jsonschema.ValidationError, out []Issue) []Issue {
	if len(e.Causes) == 0 {
		path := e.InstanceLocation
		if path == "" {
			path = "/"
		}
		return append(out, Issue{Path: path, Message: e.Message})
	}
	for _, cause := range e.Causes {
		out = leafIssues(cause, out)
	}
	return out
}

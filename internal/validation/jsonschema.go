package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/bpmnlens/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaBase = "https://bpmnlens.dev/schemas/"

// messagesSchemaJSON describes the aggregator wire format. Unknown properties
// are allowed: the aggregator may add fields the dashboard does not read.
const messagesSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://bpmnlens.dev/schemas/messages.json",
  "$defs": {
    "envelope": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "payload": {}
      }
    },
    "job_update": {
      "type": "object",
      "properties": {
        "job_id": { "type": "string" },
        "update": { "$ref": "#/$defs/update_body" }
      }
    },
    "update_body": {
      "type": "object",
      "properties": {
        "job_id": { "type": "string" },
        "perspectives": {
          "type": "array",
          "items": { "$ref": "#/$defs/perspective" }
        },
        "overlays": { "anyOf": [{ "type": "null" }, { "$ref": "#/$defs/overlays" }] },
        "summary": { "type": ["object", "null"] }
      }
    },
    "perspective": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "model_xml": { "type": "string" },
        "statistics": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id"],
            "properties": {
              "id": { "type": "string", "minLength": 1 },
              "values": { "type": "object" }
            }
          }
        }
      }
    },
    "overlays": {
      "type": "array",
      "items": { "$ref": "#/$defs/report" }
    },
    "report": {
      "type": "object",
      "required": ["block_id"],
      "properties": {
        "block_id": { "type": "string", "minLength": 1 },
        "perspective": { "type": "string" },
        "color": {
          "anyOf": [
            { "type": "null" },
            { "type": "string", "minLength": 1 },
            {
              "type": "object",
              "properties": {
                "stroke": { "type": "string" },
                "fill": { "type": "string" },
                "name": { "type": "string" }
              }
            }
          ]
        },
        "flags": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/flag" }
        }
      }
    },
    "flag": {
      "type": "object",
      "required": ["deviation"],
      "properties": {
        "deviation": { "type": "string", "minLength": 1 },
        "details": {
          "type": ["object", "null"],
          "properties": {
            "count": { "type": ["integer", "null"], "minimum": 0 },
            "over": { "type": ["array", "null"], "items": { "type": "string" } },
            "iteration": { "type": "integer" }
          }
        },
        "severity": { "type": "string" },
        "value": {}
      }
    }
  }
}`

// JSONSchemaValidator implements MessageValidator. It is safe for concurrent
// use; the compiled schemas are immutable.
type JSONSchemaValidator struct {
	envelope  *jsonschema.Schema
	jobUpdate *jsonschema.Schema
	overlays  *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the message schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(messagesSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal message schema: %w", err)
	}
	url := schemaBase + "messages.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add message schema resource: %w", err)
	}

	v := &JSONSchemaValidator{}
	for name, dst := range map[string]**jsonschema.Schema{
		"envelope":   &v.envelope,
		"job_update": &v.jobUpdate,
		"overlays":   &v.overlays,
	} {
		s, err := c.Compile(url + "#/$defs/" + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		*dst = s
	}
	return v, nil
}

// DecodeEnvelope validates and decodes the outer message frame.
func (v *JSONSchemaValidator) DecodeEnvelope(data []byte) (*schema.Envelope, error) {
	var env schema.Envelope
	if err := v.decode(v.envelope, data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeJobUpdate validates and decodes a job_update payload. A payload
// without a job id at either level is rejected.
func (v *JSONSchemaValidator) DecodeJobUpdate(payload []byte) (*schema.JobUpdate, error) {
	var upd schema.JobUpdate
	if err := v.decode(v.jobUpdate, payload, &upd); err != nil {
		return nil, err
	}
	if upd.ResolvedJobID() == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "job update without job_id")
	}
	return &upd, nil
}

// DecodeOverlays validates and decodes a bare overlay batch.
func (v *JSONSchemaValidator) DecodeOverlays(data []byte) ([]schema.BlockOverlayReport, error) {
	var reports []schema.BlockOverlayReport
	if err := v.decode(v.overlays, data, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (v *JSONSchemaValidator) decode(s *jsonschema.Schema, data []byte, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return schema.NewError(schema.ErrCodeDecode, "empty message")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeDecode, "malformed JSON").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toLensError(err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return schema.NewError(schema.ErrCodeDecode, "decode message").WithCause(err)
	}
	return nil
}

// toLensError converts a jsonschema.ValidationError into a LensError listing
// every leaf violation with its instance location.
func toLensError(err error) *schema.LensError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

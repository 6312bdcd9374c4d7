package content

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// examSchema validates the structural shape of an exam pack before
// decoding. Semantic rules (weight sums, objective references) are
// checked separately in validateExam.
const examSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "passing_score", "objectives", "questions"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "passing_score": {"type": "number", "minimum": 0, "maximum": 1},
    "time_limit_minutes": {"type": "integer", "minimum": 1},
    "objectives": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "weight"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "weight": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
        }
      }
    },
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "objective_id", "type", "prompt", "answer"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "objective_id": {"type": "string", "minLength": 1},
          "type": {"enum": ["multiple_choice", "true_false", "short_answer"]},
          "difficulty": {"type": "integer", "minimum": 1, "maximum": 5},
          "prompt": {"type": "string", "minLength": 1},
          "choices": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "text"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "text": {"type": "string"}
              }
            }
          },
          "answer": {
            "oneOf": [
              {"type": "string", "minLength": 1},
              {"type": "array", "minItems": 1, "items": {"type": "string"}}
            ]
          },
          "explanation": {"type": "string"},
          "active": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledExamSchema = gojsonschema.NewStringLoader(examSchema)

// checkSchema validates a decoded YAML document against the exam schema.
// The document must be generic (map[string]any) so it marshals to JSON.
func checkSchema(doc any) error {
	result, err := gojsonschema.Validate(compiledExamSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("exam pack failed schema validation: %s", strings.Join(msgs, "; "))
}

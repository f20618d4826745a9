package recommend

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recommendationSchema is the contract the model output must satisfy before
// any of it is accepted. Catalog id existence is checked separately since the
// schema cannot know the catalog.
const recommendationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["components", "summary"],
  "properties": {
    "components": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["component_id", "component_name", "category", "reason", "priority", "quantity"],
        "properties": {
          "component_id": {"type": "integer", "minimum": 1},
          "component_name": {"type": "string", "minLength": 1},
          "category": {"type": "string", "minLength": 1},
          "reason": {"type": "string"},
          "priority": {"enum": ["required", "recommended", "optional"]},
          "quantity": {"type": "integer", "minimum": 1},
          "alternatives": {"type": "array", "items": {"type": "integer", "minimum": 1}}
        }
      }
    },
    "summary": {"type": "string", "minLength": 1},
    "estimated_total": {"type": ["number", "null"], "minimum": 0},
    "notes": {"type": "array", "items": {"type": "string"}},
    "experience_notes": {"type": "string"},
    "budget_notes": {"type": "string"},
    "use_case_notes": {"type": "string"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func recommendationSchemaCompiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://so101-builder.local/recommendation.schema.json"
		if err := c.AddResource(url, strings.NewReader(recommendationSchema)); err != nil {
			schemaErr = fmt.Errorf("loading recommendation schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(url)
	})
	return compiledSchema, schemaErr
}

// validateRecommendationDoc checks a decoded JSON document against the
// recommendation schema.
func validateRecommendationDoc(doc any) error {
	schema, err := recommendationSchemaCompiled()
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

package gemini

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

// Response schemas are declared twice: once for the model (genai.Schema,
// constrains generation) and once as JSON Schema (validates what came back).

var wisdomResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"speech":   {Type: genai.TypeString},
		"sqlQuery": {Type: genai.TypeString},
		"visualization": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":      {Type: genai.TypeString},
				"type":       {Type: genai.TypeString, Enum: []string{"bar", "line"}},
				"yAxisLabel": {Type: genai.TypeString},
				"data": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"label": {Type: genai.TypeString},
							"value": {Type: genai.TypeNumber},
						},
						Required: []string{"label", "value"},
					},
				},
			},
			Required: []string{"title", "type", "data"},
		},
	},
	Required: []string{"speech"},
}

var selectionResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"chosenId": {Type: genai.TypeString},
		"prophecy": {Type: genai.TypeString},
	},
	Required: []string{"chosenId", "prophecy"},
}

const wisdomJSONSchema = `{
  "type": "object",
  "required": ["speech"],
  "properties": {
    "speech": {"type": "string"},
    "sqlQuery": {"type": "string"},
    "visualization": {
      "type": "object",
      "required": ["title", "type", "data"],
      "properties": {
        "title": {"type": "string"},
        "type": {"enum": ["bar", "line"]},
        "yAxisLabel": {"type": "string"},
        "data": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["label", "value"],
            "properties": {
              "label": {"type": "string"},
              "value": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`

const selectionJSONSchema = `{
  "type": "object",
  "required": ["chosenId", "prophecy"],
  "properties": {
    "chosenId": {"type": "string"},
    "prophecy": {"type": "string"}
  }
}`

var (
	wisdomValidator    = mustCompile("wisdom", wisdomJSONSchema)
	selectionValidator = mustCompile("selection", selectionJSONSchema)
)

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://bukeqi.schemas.local/gemini/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return compiled, nil
}

func mustCompile(name, schema string) *jsonschema.Schema {
	s, err := compileSchema(name, schema)
	if err != nil {
		panic(err)
	}
	return s
}

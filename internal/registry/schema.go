package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kittclouds/memoria/internal/memerr"
)

// allowedSchemaKeys is the accepted JSON-Schema subset: the registry restricts accepted schema
// keywords to this set before compiling, rejecting anything broader.
var allowedSchemaKeys = map[string]bool{
	"type": true, "required": true, "properties": true, "items": true,
	"enum": true, "minimum": true, "maximum": true, "minLength": true, "maxLength": true,
}

var allowedTypeValues = map[string]bool{
	"null": true, "boolean": true, "integer": true, "number": true,
	"string": true, "array": true, "object": true,
}

// validateSchemaDocument rejects a metadata_schema that uses keywords or
// type values outside the accepted subset, recursing into nested "properties"
// and "items".
func validateSchemaDocument(raw json.RawMessage) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return memerr.InvalidSchema(fmt.Sprintf("metadata_schema must be a JSON object: %v", err))
	}
	return validateSchemaNode(doc)
}

func validateSchemaNode(node map[string]any) error {
	for key, val := range node {
		if !allowedSchemaKeys[key] {
			return memerr.InvalidSchema(fmt.Sprintf("unsupported schema keyword %q", key))
		}
		switch key {
		case "type":
			t, ok := val.(string)
			if !ok || !allowedTypeValues[t] {
				return memerr.InvalidSchema(fmt.Sprintf("unsupported schema type %v", val))
			}
		case "properties":
			props, ok := val.(map[string]any)
			if !ok {
				return memerr.InvalidSchema("\"properties\" must be an object")
			}
			for _, sub := range props {
				subNode, ok := sub.(map[string]any)
				if !ok {
					return memerr.InvalidSchema("each property schema must be an object")
				}
				if err := validateSchemaNode(subNode); err != nil {
					return err
				}
			}
		case "items":
			itemNode, ok := val.(map[string]any)
			if !ok {
				return memerr.InvalidSchema("\"items\" must be an object")
			}
			if err := validateSchemaNode(itemNode); err != nil {
				return err
			}
		}
	}
	return nil
}

// CompileMetadataSchema compiles a validated subset schema for use at
// relationship-write time.
func CompileMetadataSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if err := validateSchemaDocument(raw); err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString("metadata_schema.json", string(raw))
	if err != nil {
		return nil, memerr.InvalidSchema(err.Error())
	}
	return schema, nil
}

// ValidateProperties validates relationship properties JSON against a
// compiled metadata schema, surfacing violations as Validation.
func ValidateProperties(schema *jsonschema.Schema, properties json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var v any
	if len(properties) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(properties, &v); err != nil {
		return memerr.Validation("properties", "properties must be valid JSON")
	}
	if err := schema.Validate(v); err != nil {
		return memerr.Validation("properties", err.Error())
	}
	return nil
}

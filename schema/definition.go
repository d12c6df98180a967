package schema

import (
	"encoding/json"
	"fmt"
)

// PropertyDefinition is one entry under "properties" in a payload definition.
// Object-typed entries recursively carry their own properties and required
// list.
type PropertyDefinition struct {
	Type       string                        `json:"type"`
	Properties map[string]PropertyDefinition `json:"properties"`
	Required   []string                      `json:"required"`
}

// EventDefinition is the root of a registered payload definition.
type EventDefinition struct {
	Type       string                        `json:"type"`
	Properties map[string]PropertyDefinition `json:"properties"`
	Required   []string                      `json:"required"`
}

// ValidateEventDefinition enforces the structural rules for payload
// definitions: the root must be an object schema, every property must declare
// a type of string, number, or object, and object properties must themselves
// declare properties and required, recursively.
func ValidateEventDefinition(definition json.RawMessage) error {
	var def EventDefinition
	if err := json.Unmarshal(definition, &def); err != nil {
		return fmt.Errorf("payload definition is not valid JSON: %w", err)
	}
	if def.Type != "object" {
		return fmt.Errorf("payload definition root must declare type \"object\", got %q", def.Type)
	}
	return validateProperties("", def.Properties, def.Required)
}

func validateProperties(path string, properties map[string]PropertyDefinition, required []string) error {
	for _, name := range required {
		if _, ok := properties[name]; !ok {
			return fmt.Errorf("required property %q is not declared under properties%s", name, at(path))
		}
	}

	for name, prop := range properties {
		propPath := name
		if path != "" {
			propPath = path + "." + name
		}
		switch prop.Type {
		case "string", "number":
		case "object":
			if prop.Properties == nil {
				return fmt.Errorf("object property %q must declare properties", propPath)
			}
			if prop.Required == nil {
				return fmt.Errorf("object property %q must declare required", propPath)
			}
			if err := validateProperties(propPath, prop.Properties, prop.Required); err != nil {
				return err
			}
		default:
			return fmt.Errorf("property %q has invalid type %q: must be string, number, or object", propPath, prop.Type)
		}
	}
	return nil
}

func at(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf(" of %q", path)
}

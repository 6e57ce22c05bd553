// Package validation checks local records before they are written and
// validates tax identifiers.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Validator checks a record's field values against its entity schema
type Validator interface {
	Validate(entity string, data map[string]interface{}) (bool, []string)
	LoadSchema(entity string, schemaData map[string]interface{}) error
	HasSchema(entity string) bool
}

// SchemaValidator implements a JSON-schema subset: required fields, property
// types, string lengths, numeric bounds and enums.
type SchemaValidator struct {
	schemas map[string]map[string]interface{}
	mu      sync.RWMutex
}

// NewSchemaValidator creates a validator preloaded with the local record
// schemas.
func NewSchemaValidator() *SchemaValidator {
	v := &SchemaValidator{schemas: make(map[string]map[string]interface{})}
	for entity, schema := range DefaultSchemas() {
		v.schemas[entity] = schema
	}
	return v
}

// LoadSchema replaces the schema for an entity
func (v *SchemaValidator) LoadSchema(entity string, schemaData map[string]interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.schemas[entity] = schemaData
	return nil
}

// LoadSchemaDir loads every <entity>.json file in dir, overriding the
// built-in schemas. A missing directory is not an error.
func (v *SchemaValidator) LoadSchemaDir(dir string) error {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return err
		}
		var schemaData map[string]interface{}
		if err := json.Unmarshal(data, &schemaData); err != nil {
			return fmt.Errorf("failed to load schema %s: %w", file.Name(), err)
		}

		entity := file.Name()[:len(file.Name())-5]
		if err := v.LoadSchema(entity, schemaData); err != nil {
			return err
		}
	}
	return nil
}

// HasSchema checks if a schema exists for an entity
func (v *SchemaValidator) HasSchema(entity string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, exists := v.schemas[entity]
	return exists
}

// Validate validates data against the entity schema; entities without a
// schema pass.
func (v *SchemaValidator) Validate(entity string, data map[string]interface{}) (bool, []string) {
	v.mu.RLock()
	schema, exists := v.schemas[entity]
	v.mu.RUnlock()

	if !exists {
		return true, nil
	}

	errors := []string{}

	for _, field := range requiredFields(schema) {
		if value, exists := data[field]; !exists || value == nil {
			errors = append(errors, fmt.Sprintf("missing required field: %s", field))
		}
	}

	properties, _ := schema["properties"].(map[string]interface{})

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := data[key]
		if key == "id" || value == nil {
			continue
		}

		propMap, ok := properties[key].(map[string]interface{})
		if !ok {
			continue
		}

		if expectedType, ok := propMap["type"].(string); ok {
			actualType := getJSONType(value)
			if actualType != expectedType && !(expectedType == "number" && actualType == "integer") {
				errors = append(errors,
					fmt.Sprintf("field %s: expected type %s, got %s", key, expectedType, actualType))
				continue
			}
		}

		if entity, ok := propMap["ref"].(string); ok {
			for _, problem := range checkRefs(value, entity) {
				errors = append(errors, fmt.Sprintf("field %s: %s", key, problem))
			}
		}

		if strVal, ok := value.(string); ok {
			if minLen, ok := number(propMap["minLength"]); ok && len(strVal) < int(minLen) {
				errors = append(errors,
					fmt.Sprintf("field %s: string too short (min %d)", key, int(minLen)))
			}
			if maxLen, ok := number(propMap["maxLength"]); ok && len(strVal) > int(maxLen) {
				errors = append(errors,
					fmt.Sprintf("field %s: string too long (max %d)", key, int(maxLen)))
			}
		}

		if numVal, ok := number(value); ok {
			if min, ok := number(propMap["minimum"]); ok && numVal < min {
				errors = append(errors,
					fmt.Sprintf("field %s: value too small (min %v)", key, min))
			}
			if max, ok := number(propMap["maximum"]); ok && numVal > max {
				errors = append(errors,
					fmt.Sprintf("field %s: value too large (max %v)", key, max))
			}
		}

		if enum, ok := propMap["enum"].([]interface{}); ok {
			found := false
			for _, enumVal := range enum {
				if value == enumVal {
					found = true
					break
				}
			}
			if !found {
				errors = append(errors,
					fmt.Sprintf("field %s: value %v not in allowed enum values", key, value))
			}
		}
	}

	return len(errors) == 0, errors
}

func requiredFields(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		fields := make([]string, 0, len(req))
		for _, f := range req {
			if s, ok := f.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	}
	return nil
}

// checkRefs verifies that an object or array value holds references to entity
func checkRefs(value interface{}, entity string) []string {
	var problems []string
	check := func(item interface{}) {
		m, ok := item.(map[string]interface{})
		if !ok || m["type"] != "REF" {
			problems = append(problems, "not a reference")
			return
		}
		if m["entity"] != entity {
			problems = append(problems, fmt.Sprintf("references %v, want %s", m["entity"], entity))
		}
	}

	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			check(item)
		}
	default:
		check(v)
	}
	return problems
}

// getJSONType returns the JSON type name for a value
func getJSONType(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		if val == float64(int64(val)) {
			return "integer"
		}
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "unknown"
	}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// NoOpValidator is a validator that always passes
type NoOpValidator struct{}

// Validate always returns true
func (NoOpValidator) Validate(entity string, data map[string]interface{}) (bool, []string) {
	return true, nil
}

// LoadSchema is a no-op
func (NoOpValidator) LoadSchema(entity string, schemaData map[string]interface{}) error {
	return nil
}

// HasSchema always returns false
func (NoOpValidator) HasSchema(entity string) bool {
	return false
}

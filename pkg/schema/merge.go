// Package schema merges declared defaults into action configs and validates them
// against the JSON schema of their action kind.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const rootField = "(root)"

// Source resolves the JSON schema declared by an action kind.
type Source interface {
	Schema(kind string) (map[string]any, error)
}

// Validator merges and validates action configs, caching compiled schemas per kind.
type Validator struct {
	source   Source
	mu       sync.RWMutex
	compiled map[string]*gojsonschema.Schema
}

func NewValidator(source Source) *Validator {
	return &Validator{
		source:   source,
		compiled: make(map[string]*gojsonschema.Schema),
	}
}

// MergeAndValidate fills defaults for kind and validates the result. Validation
// failures are returned as field errors; the error result is reserved for unknown
// kinds and broken schemas.
func (v *Validator) MergeAndValidate(kind string, raw map[string]any) (map[string]any, []models.FieldError, error) {
	declared, err := v.source.Schema(kind)
	if err != nil {
		return nil, nil, err
	}

	merged := MergeDefaults(declared, raw)

	compiled, err := v.compile(kind, declared)
	if err != nil {
		return merged, nil, err
	}

	fieldErrors, err := validate(compiled, merged)
	if err != nil {
		return merged, nil, err
	}

	return merged, fieldErrors, nil
}

func (v *Validator) compile(kind string, declared map[string]any) (*gojsonschema.Schema, error) {
	v.mu.RLock()
	compiled, ok := v.compiled[kind]
	v.mu.RUnlock()

	if ok {
		return compiled, nil
	}

	compiled, err := compile(declared)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for action kind %q: %w", kind, err)
	}

	v.mu.Lock()
	v.compiled[kind] = compiled
	v.mu.Unlock()

	return compiled, nil
}

// MergeAndValidate merges defaults from declared into raw and validates the
// result without caching.
func MergeAndValidate(declared map[string]any, raw map[string]any) (map[string]any, []models.FieldError) {
	merged := MergeDefaults(declared, raw)

	compiled, err := compile(declared)
	if err != nil {
		return merged, []models.FieldError{{Path: rootField, Type: "schema", Message: err.Error()}}
	}

	fieldErrors, err := validate(compiled, merged)
	if err != nil {
		return merged, []models.FieldError{{Path: rootField, Type: "schema", Message: err.Error()}}
	}

	return merged, fieldErrors
}

// MergeDefaults returns a copy of raw in which every property absent from raw
// takes the default declared for it. Nested object properties are merged
// recursively. raw is never modified.
func MergeDefaults(declared map[string]any, raw map[string]any) map[string]any {
	merged, _ := copyValue(raw).(map[string]any)
	if merged == nil {
		merged = make(map[string]any)
	}

	mergeObject(declared, merged)

	return merged
}

func mergeObject(declared map[string]any, target map[string]any) {
	properties, _ := declared["properties"].(map[string]any)

	for name, rawProperty := range properties {
		property, ok := rawProperty.(map[string]any)
		if !ok {
			continue
		}

		value, present := target[name]
		if !present {
			def, hasDefault := property["default"]
			if !hasDefault {
				continue
			}

			value = copyValue(def)
			target[name] = value
		}

		if nested, isObject := value.(map[string]any); isObject {
			mergeObject(property, nested)
		}
	}
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = copyValue(v)
		}

		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = copyValue(v)
		}

		return out
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)

		return out
	default:
		return value
	}
}

func compile(declared map[string]any) (*gojsonschema.Schema, error) {
	if declared == nil {
		declared = map[string]any{"type": "object"}
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(declared))
}

func validate(compiled *gojsonschema.Schema, config map[string]any) ([]models.FieldError, error) {
	result, err := compiled.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	fieldErrors := make([]models.FieldError, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		fieldErrors = append(fieldErrors, toFieldError(resultErr))
	}

	sort.SliceStable(fieldErrors, func(i, j int) bool {
		return fieldErrors[i].Path < fieldErrors[j].Path
	})

	return fieldErrors, nil
}

func toFieldError(resultErr gojsonschema.ResultError) models.FieldError {
	path := resultErr.Field()

	property, hasProperty := resultErr.Details()["property"].(string)
	namesProperty := resultErr.Type() == "required" || resultErr.Type() == "additional_property_not_allowed"

	if hasProperty && namesProperty && path != property && !strings.HasSuffix(path, "."+property) {
		if path == rootField || path == "" {
			path = property
		} else {
			path = path + "." + property
		}
	}

	return models.FieldError{
		Path:    strings.TrimPrefix(path, rootField+"."),
		Type:    resultErr.Type(),
		Message: resultErr.Description(),
	}
}

// FormatErrors renders field errors as a single message.
func FormatErrors(fieldErrors []models.FieldError) string {
	parts := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		parts = append(parts, fieldErr.Error())
	}

	return strings.Join(parts, "; ")
}

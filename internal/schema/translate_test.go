package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"reqline/internal/fault"
)

func specFixture() map[string]any {
	return map[string]any{
		"title": "TestSpec",
		"type":  "object",
		"properties": map[string]any{
			"temperature": map[string]any{"type": "integer"},
			"unit":        map[string]any{"type": "string"},
			"options": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"anyOf": []any{
						map[string]any{"type": "boolean"},
						map[string]any{"type": "integer"},
					},
				},
			},
			"compounds": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"formula":       map[string]any{"type": "string"},
						"concentration": map[string]any{"type": "number"},
					},
					"required": []any{"formula", "concentration"},
				},
			},
		},
		"required": []any{"temperature", "unit", "compounds"},
	}
}

func TestDeriveLimitationsEmptySchema(t *testing.T) {
	derived, err := DeriveLimitations(map[string]any{})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"additionalProperties": false}, derived)
}

func TestDeriveLimitationsAcceptsValidLimitations(t *testing.T) {
	derived, err := DeriveLimitations(specFixture())
	require.NoError(t, err)

	valid := []any{
		// No limitations at all.
		[]any{},
		// A range with a step plus a point value.
		[]any{map[string]any{
			"temperature": []any{
				map[string]any{"max": 400, "step": 2},
				0,
			},
		}},
		// A string literal list alongside a numeric range.
		[]any{map[string]any{
			"temperature": []any{map[string]any{"min": 100, "max": 400}},
			"unit":        []any{"Kelvin"},
		}},
		// Nested limitations on array items.
		[]any{map[string]any{
			"compounds": []any{[]any{map[string]any{
				"formula":       "H2O",
				"concentration": []any{map[string]any{"min": 0.1, "max": 0.5}},
			}}},
		}},
	}
	for i, instance := range valid {
		require.NoError(t, Validate(derived, instance), "case %d", i)
	}
}

func TestDeriveLimitationsRejectsInvalidLimitations(t *testing.T) {
	derived, err := DeriveLimitations(specFixture())
	require.NoError(t, err)

	invalid := []any{
		// Wrong type for a numeric parameter.
		[]any{map[string]any{"temperature": "garbage"}},
		// Range objects only admit min, max and step.
		[]any{map[string]any{"temperature": []any{map[string]any{"minimum": 10}}}},
		// A string parameter cannot be limited to numbers.
		[]any{map[string]any{"unit": []any{5}}},
	}
	for i, instance := range invalid {
		err := Validate(derived, instance)
		require.Error(t, err, "case %d", i)
		var validation fault.ValidationError
		require.True(t, errors.As(err, &validation), "case %d: got %v", i, err)
	}
}

func TestDeriveLimitationsTitleSurvives(t *testing.T) {
	derived, err := DeriveLimitations(specFixture())
	require.NoError(t, err)
	require.Equal(t, "TestSpec", derived["title"])
}

func TestDeriveLimitationsAllOfSingleMember(t *testing.T) {
	derived, err := DeriveLimitations(map[string]any{
		"allOf": []any{map[string]any{"type": "string"}},
	})
	require.NoError(t, err)
	require.Len(t, derived["allOf"], 1)
}

func TestDeriveLimitationsAllOfMultipleMembers(t *testing.T) {
	_, err := DeriveLimitations(map[string]any{
		"allOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "integer"},
		},
	})
	var schemaErr fault.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
}

func TestDeriveLimitationsNodeWithoutType(t *testing.T) {
	_, err := DeriveLimitations(map[string]any{"title": "broken"})
	var schemaErr fault.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
}

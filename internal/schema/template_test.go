package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"reqline/internal/fault"
)

func templateFixture() map[string]any {
	return map[string]any{
		"title": "TestSpec",
		"type":  "object",
		"properties": map[string]any{
			"temperature": map[string]any{"type": "integer"},
			"unit":        map[string]any{"type": "string"},
			"compounds": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/Compound"},
			},
			"reference": map[string]any{
				"allOf": []any{map[string]any{"$ref": "#/$defs/Compound"}},
			},
			"note": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "null"},
				},
			},
		},
		"required": []any{"temperature", "compounds"},
		"$defs": map[string]any{
			"Compound": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"formula":       map[string]any{"type": "string"},
					"concentration": map[string]any{"type": "number"},
				},
				"required": []any{"formula"},
			},
		},
	}
}

func TestTemplateLeaves(t *testing.T) {
	tpl, err := Template(templateFixture(), nil)
	require.NoError(t, err)

	require.Equal(t, "required, int", tpl["temperature"])
	require.Equal(t, "optional, str", tpl["unit"])
}

func TestTemplateResolvesReferences(t *testing.T) {
	tpl, err := Template(templateFixture(), nil)
	require.NoError(t, err)

	compound := map[string]any{
		"formula":       "required, str",
		"concentration": "optional, float",
	}
	require.Equal(t, []any{compound}, tpl["compounds"])
	require.Equal(t, compound, tpl["reference"])
}

func TestTemplateNullableAnyOf(t *testing.T) {
	tpl, err := Template(templateFixture(), nil)
	require.NoError(t, err)
	require.Equal(t, "optional, str", tpl["note"])
}

func TestTemplateCoversAllProperties(t *testing.T) {
	fixture := templateFixture()
	tpl, err := Template(fixture, nil)
	require.NoError(t, err)

	props := fixture["properties"].(map[string]any)
	for name := range props {
		require.Contains(t, tpl, name)
	}
}

func TestTemplateTupleAnyOf(t *testing.T) {
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"window": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type": "array",
						"prefixItems": []any{
							map[string]any{"type": "number"},
							map[string]any{"type": "number"},
						},
						"minItems": 2,
						"maxItems": 2,
					},
					map[string]any{"type": "null"},
				},
			},
		},
	}
	tpl, err := Template(doc, nil)
	require.NoError(t, err)
	require.Equal(t, "optional, (float, float)", tpl["window"])
}

func TestTemplateTupleRejectsUnsupportedItemType(t *testing.T) {
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"window": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type": "array",
						"prefixItems": []any{
							map[string]any{"type": "number"},
							map[string]any{"type": "object"},
						},
						"minItems": 2,
						"maxItems": 2,
					},
				},
			},
		},
	}
	_, err := Template(doc, nil)
	var schemaErr fault.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
}

func TestTemplateUnresolvedReference(t *testing.T) {
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"broken": map[string]any{
				"allOf": []any{map[string]any{"$ref": "#/$defs/Missing"}},
			},
		},
	}
	_, err := Template(doc, nil)
	var schemaErr fault.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
}

func TestTemplateNonObjectSchema(t *testing.T) {
	tpl, err := Template(map[string]any{"type": "string"}, nil)
	require.NoError(t, err)
	require.Empty(t, tpl)
}

package schema

import "reqline/internal/fault"

// DeriveLimitations derives the limitations schema for a capability's
// specifications schema. Every node of the source schema is rewritten so that
// a limitation may state either a single admissible instance or an array of
// admissible instances; numeric leaves additionally admit {min, max, step}
// range objects. The input schema must be dereferenced.
func DeriveLimitations(inputsSchema map[string]any) (map[string]any, error) {
	// No parameters, no limitations.
	if len(inputsSchema) == 0 {
		return map[string]any{"additionalProperties": false}, nil
	}

	out := map[string]any{}
	if title, ok := inputsSchema["title"]; ok {
		out["title"] = title
	}

	// Generated schemas sometimes wrap a single subschema in allOf.
	if raw, ok := inputsSchema["allOf"]; ok {
		subschemas, ok := raw.([]any)
		if !ok {
			return nil, fault.Schemaf("allOf is not an array")
		}
		if len(subschemas) > 1 {
			return nil, fault.Schemaf("schema contains an allOf with more than 1 element")
		}
		member, err := subschemaNode(subschemas[0])
		if err != nil {
			return nil, err
		}
		translated, err := DeriveLimitations(member)
		if err != nil {
			return nil, err
		}
		out["allOf"] = []any{translated}
		return out, nil
	}

	// Alternative subschemas may carry different limitations each.
	if raw, ok := inputsSchema["anyOf"]; ok {
		subschemas, ok := raw.([]any)
		if !ok {
			return nil, fault.Schemaf("anyOf is not an array")
		}
		branches := make([]any, 0, len(subschemas))
		for _, sub := range subschemas {
			member, err := subschemaNode(sub)
			if err != nil {
				return nil, err
			}
			translated, err := DeriveLimitations(member)
			if err != nil {
				return nil, err
			}
			branches = append(branches, translated)
		}
		out["anyOf"] = branches
		return out, nil
	}

	nodeType, ok := inputsSchema["type"].(string)
	if !ok {
		return nil, fault.Schemaf("schema node has no type")
	}

	// Each node may be limited to a single instance of its original shape or
	// to an array of admissible instances.
	singleObject := map[string]any{"type": nodeType}
	var schemaItems any

	switch nodeType {
	case "array":
		items, err := subschemaNode(inputsSchema["items"])
		if err != nil {
			return nil, err
		}
		translated, err := DeriveLimitations(items)
		if err != nil {
			return nil, err
		}
		schemaItems = translated
		singleObject["items"] = translated

	case "number", "integer":
		// A numeric leaf admits point values or {min, max, step} ranges.
		rangeSchema := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"min":  map[string]any{"type": nodeType},
				"max":  map[string]any{"type": nodeType},
				"step": map[string]any{"type": nodeType},
			},
			"additionalProperties": false,
		}
		schemaItems = map[string]any{
			"anyOf": []any{rangeSchema, map[string]any{"type": nodeType}},
		}

	default:
		// Strings and booleans are done here. Object nodes recurse through
		// their properties.
		itemsNode := map[string]any{"type": nodeType}

		if raw, ok := inputsSchema["properties"]; ok {
			props, ok := raw.(map[string]any)
			if !ok {
				return nil, fault.Schemaf("properties is not an object")
			}
			translatedProps := map[string]any{}
			for name, propRaw := range props {
				prop, err := subschemaNode(propRaw)
				if err != nil {
					return nil, err
				}
				translated, err := DeriveLimitations(prop)
				if err != nil {
					return nil, err
				}
				translatedProps[name] = translated
			}
			itemsNode["properties"] = translatedProps
			singleObject["properties"] = translatedProps
		}

		if raw, ok := inputsSchema["additionalProperties"]; ok {
			if node, isMap := raw.(map[string]any); isMap {
				translated, err := DeriveLimitations(node)
				if err != nil {
					return nil, err
				}
				itemsNode["additionalProperties"] = translated
				singleObject["additionalProperties"] = translated
			} else {
				itemsNode["additionalProperties"] = raw
				singleObject["additionalProperties"] = raw
			}
		}

		schemaItems = itemsNode
	}

	out["anyOf"] = []any{
		singleObject,
		map[string]any{"type": "array", "items": schemaItems},
	}
	return out, nil
}

func subschemaNode(v any) (map[string]any, error) {
	node, ok := v.(map[string]any)
	if !ok {
		return nil, fault.Schemaf("subschema is not an object")
	}
	return node, nil
}

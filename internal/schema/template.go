package schema

import (
	"fmt"
	"sort"
	"strings"

	"reqline/internal/fault"
)

// typeNames maps JSON Schema leaf types to the names shown in templates.
var typeNames = map[string]string{
	"number":  "float",
	"integer": "int",
	"string":  "str",
	"boolean": "bool",
}

// Template renders a capability schema as a nested map whose leaves are
// "required, <type>" or "optional, <type>" strings. References are resolved
// through the schema's definitions; an unresolved reference is a
// fault.SchemaError. definitions may be nil for a top level schema.
func Template(schemaDoc map[string]any, definitions map[string]any) (map[string]any, error) {
	template := map[string]any{}

	required := map[string]bool{}
	if raw, ok := schemaDoc["required"].([]any); ok {
		for _, name := range raw {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	}

	if defs, ok := schemaDoc["definitions"].(map[string]any); ok {
		definitions = defs
	} else if defs, ok := schemaDoc["$defs"].(map[string]any); ok {
		definitions = defs
	}

	nodeType, _ := schemaDoc["type"].(string)
	if nodeType != "object" {
		return template, nil
	}
	props, ok := schemaDoc["properties"].(map[string]any)
	if !ok {
		return template, nil
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			return nil, fault.Schemaf("property %q is not an object", name)
		}
		requirement := "optional"
		if required[name] {
			requirement = "required"
		}
		rendered, err := renderProperty(prop, requirement, definitions)
		if err != nil {
			return nil, err
		}
		if rendered != nil {
			template[name] = rendered
		}
	}
	return template, nil
}

func renderProperty(prop map[string]any, requirement string, definitions map[string]any) (any, error) {
	if propType, ok := prop["type"].(string); ok {
		if name, leaf := typeNames[propType]; leaf {
			return fmt.Sprintf("%s, %s", requirement, name), nil
		}
		switch propType {
		case "array":
			return renderArray(prop, requirement, definitions)
		case "object":
			return Template(prop, definitions)
		}
		return nil, nil
	}

	if raw, ok := prop["allOf"].([]any); ok {
		var rendered any
		for _, member := range raw {
			node, ok := member.(map[string]any)
			if !ok {
				return nil, fault.Schemaf("allOf member is not an object")
			}
			resolved, err := resolveRef(node, definitions)
			if err != nil {
				return nil, err
			}
			rendered, err = Template(resolved, definitions)
			if err != nil {
				return nil, err
			}
		}
		return rendered, nil
	}

	if raw, ok := prop["anyOf"].([]any); ok {
		return renderAnyOf(raw, requirement, definitions)
	}
	return nil, nil
}

func renderArray(prop map[string]any, requirement string, definitions map[string]any) (any, error) {
	rendered := []any{}

	var items []any
	switch v := prop["items"].(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	}

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, fault.Schemaf("array item schema is not an object")
		}
		if itemType, ok := item["type"].(string); ok {
			if name, leaf := typeNames[itemType]; leaf {
				rendered = append(rendered, fmt.Sprintf("%s, %s", requirement, name))
			}
		}
		if _, ok := item["$ref"]; ok {
			resolved, err := resolveRef(item, definitions)
			if err != nil {
				return nil, err
			}
			sub, err := Template(resolved, definitions)
			if err != nil {
				return nil, err
			}
			rendered = append(rendered, sub)
		}
	}
	return rendered, nil
}

func renderAnyOf(members []any, requirement string, definitions map[string]any) (any, error) {
	var types []string

	for _, raw := range members {
		member, ok := raw.(map[string]any)
		if !ok {
			return nil, fault.Schemaf("anyOf member is not an object")
		}

		if _, ok := member["$ref"]; ok {
			resolved, err := resolveRef(member, definitions)
			if err != nil {
				return nil, err
			}
			sub, err := Template(resolved, definitions)
			if err != nil {
				return nil, err
			}
			types = append(types, fmt.Sprintf("%v", sub))
			continue
		}

		if extra, ok := member["additionalProperties"].(map[string]any); ok {
			if _, ok := extra["$ref"]; ok {
				resolved, err := resolveRef(extra, definitions)
				if err != nil {
					return nil, err
				}
				sub, err := Template(resolved, definitions)
				if err != nil {
					return nil, err
				}
				types = append(types, fmt.Sprintf("%v", map[string]any{requirement + ", str": sub}))
				continue
			}
		}

		memberType, _ := member["type"].(string)
		switch {
		case typeNames[memberType] != "":
			types = append(types, typeNames[memberType])
		case memberType == "array":
			prefix, _ := member["prefixItems"].([]any)
			var typeList []string
			for _, p := range prefix {
				item, ok := p.(map[string]any)
				if !ok {
					return nil, fault.Schemaf("prefixItems member is not an object")
				}
				itemType, _ := item["type"].(string)
				name, leaf := typeNames[itemType]
				if !leaf {
					return nil, fault.Schemaf("prefixItems member has unsupported type %q", itemType)
				}
				typeList = append(typeList, name)
			}
			minItems, hasMin := member["minItems"]
			maxItems, hasMax := member["maxItems"]
			if hasMin && hasMax && minItems == maxItems {
				types = append(types, "("+strings.Join(typeList, ", ")+")")
			} else {
				types = append(types, "["+strings.Join(typeList, " ")+"]")
			}
		case memberType == "null":
			requirement = "optional"
		}
	}

	return fmt.Sprintf("%s, %s", requirement, strings.Join(types, " or ")), nil
}

func resolveRef(node map[string]any, definitions map[string]any) (map[string]any, error) {
	ref, ok := node["$ref"].(string)
	if !ok {
		return nil, fault.Schemaf("expected $ref in schema node")
	}
	parts := strings.Split(ref, "/")
	key := parts[len(parts)-1]
	target, ok := definitions[key].(map[string]any)
	if !ok {
		return nil, fault.Schemaf("unresolved reference %q", ref)
	}
	return target, nil
}

package translate

// geminiUnsupportedSchemaKeywords lists the JSON-Schema keywords Gemini's
// function-declaration subset rejects (§4.2). geminiSchema strips them,
// recursing into nested object/array schemas, and otherwise passes the
// schema through structurally untouched.
var geminiUnsupportedSchemaKeywords = map[string]bool{
	"additionalProperties": true,
	"$ref":                 true,
	"$schema":              true,
	"$defs":                true,
	"definitions":          true,
	"patternProperties":    true,
}

// geminiSchema returns a copy of schema with unsupported keywords removed,
// recursively. A nil input returns nil.
func geminiSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if geminiUnsupportedSchemaKeywords[k] {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			out[k] = geminiSchema(val)
		case []any:
			out[k] = geminiSchemaList(val)
		default:
			out[k] = v
		}
	}
	return out
}

func geminiSchemaList(items []any) []any {
	out := make([]any, len(items))
	for i, it := range items {
		if m, ok := it.(map[string]any); ok {
			out[i] = geminiSchema(m)
		} else {
			out[i] = it
		}
	}
	return out
}

package llm

// schemaProperties returns the "properties" object of a JSON schema map, or
// an empty map when absent so vendor SDKs always see a valid object schema.
func schemaProperties(schema map[string]interface{}) map[string]interface{} {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

// schemaRequired returns the "required" names of a JSON schema map. Schemas
// decoded from JSON carry []interface{}; hand-built schemas may use []string.
func schemaRequired(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		names := make([]string, 0, len(required))
		for _, v := range required {
			if name, ok := v.(string); ok {
				names = append(names, name)
			}
		}
		return names
	}
	return nil
}

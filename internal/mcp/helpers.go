package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
		return fallback
	case []string:
		// URI template variables may arrive as lists.
		if len(v) == 0 {
			return fallback
		}
		return getIntArg(map[string]interface{}{key: v[0]}, key, fallback)
	default:
		return fallback
	}
}

// getJSONArg returns args[key] as a JSON document. Strings are passed through
// untouched so callers can hand over pre-encoded payloads.
func getJSONArg(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key]
	if !ok || val == nil {
		return "{}", nil
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return "", fmt.Errorf("%s is not JSON-encodable: %w", key, err)
	}
	return string(raw), nil
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}

package convert

import (
	"fmt"
	"reflect"
)

var errNotMap = fmt.Errorf("input data is not a map")
var errNotStringValue = fmt.Errorf("map value is not a string")
var errNotSlice = fmt.Errorf("input data is not a slice")

// ToStringMap converts map[string]any or map[string]string to
// map[string]string. A nil input yields a nil map, not an error.
func ToStringMap(data any) (map[string]string, error) {
	if data == nil {
		return nil, nil
	}
	if m, ok := data.(map[string]string); ok {
		return m, nil
	}
	if mAny, ok := data.(map[string]any); ok {
		result := make(map[string]string, len(mAny))
		for k, v := range mAny {
			vStr, okStr := v.(string)
			if !okStr {
				return nil, fmt.Errorf("key '%s': %w (type %T)", k, errNotStringValue, v)
			}
			result[k] = vStr
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: input type %T", errNotMap, data)
}

// ToSectionMap converts a two-level document (section -> key -> value)
// into map[string]map[string]string, stringifying scalar leaf values.
func ToSectionMap(data any) (map[string]map[string]string, error) {
	if data == nil {
		return nil, nil
	}
	outer, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: input type %T", errNotMap, data)
	}
	result := make(map[string]map[string]string, len(outer))
	for section, body := range outer {
		inner, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("section '%s': %w (type %T)", section, errNotMap, body)
		}
		kv := make(map[string]string, len(inner))
		for k, v := range inner {
			switch val := v.(type) {
			case string:
				kv[k] = val
			case bool, int, int64, float64:
				kv[k] = fmt.Sprintf("%v", val)
			default:
				return nil, fmt.Errorf("section '%s' key '%s': %w (type %T)", section, k, errNotStringValue, v)
			}
		}
		result[section] = kv
	}
	return result, nil
}

// ToSliceOfString converts []string or any slice to []string, rendering
// non-string elements with %v.
func ToSliceOfString(data any) ([]string, error) {
	if data == nil {
		return []string{}, nil
	}

	if slice, ok := data.([]string); ok {
		return slice, nil
	}

	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: input type %T", errNotSlice, data)
	}

	result := make([]string, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		result = append(result, fmt.Sprintf("%v", val.Index(i).Interface()))
	}
	return result, nil
}

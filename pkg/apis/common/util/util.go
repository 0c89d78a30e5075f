// pkg/apis/common/util/util.go
// Package util provides small value helpers shared by builders and reconcilers.
package util

// Int32OrDefault returns val, or defaultValue when val is zero.
func Int32OrDefault(val, defaultValue int32) int32 {
	if val == 0 {
		return defaultValue
	}
	return val
}

// StringOrDefault returns val, or defaultValue when val is empty.
func StringOrDefault(val, defaultValue string) string {
	if val == "" {
		return defaultValue
	}
	return val
}

// GetInt32ValueOrDefault returns *ptr, or defaultValue when ptr is nil.
func GetInt32ValueOrDefault(ptr *int32, defaultValue int32) int32 {
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// MergeStringMaps merges two maps[string]string. Override keys take precedence.
// The result is always a fresh map, so callers may mutate it.
func MergeStringMaps(base map[string]string, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	// Add/override with keys from override
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

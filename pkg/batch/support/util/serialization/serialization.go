// Package serialization holds helpers for rendering job parameters into logs and
// persisted metadata without leaking sensitive values.
package serialization

import (
	"strings"
	"sync"
)

const maskedValue = "********"

var (
	maskedMu   sync.RWMutex
	maskedKeys = map[string]struct{}{}
)

// SetMaskedParameterKeys replaces the set of parameter keys whose values are masked.
// Keys are compared case-insensitively.
func SetMaskedParameterKeys(keys []string) {
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			next[strings.ToLower(k)] = struct{}{}
		}
	}
	maskedMu.Lock()
	maskedKeys = next
	maskedMu.Unlock()
}

// GetMaskedJobParametersMap returns a copy of params with configured keys masked.
func GetMaskedJobParametersMap(params map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(params))
	maskedMu.RLock()
	defer maskedMu.RUnlock()
	for k, v := range params {
		if _, ok := maskedKeys[strings.ToLower(k)]; ok {
			masked[k] = maskedValue
			continue
		}
		masked[k] = v
	}
	return masked
}

package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/serialization"
)

// JobParameters identifies a job run. Supported value types are string, integers (long),
// floats, bool and time.Time (date).
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters creates an empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put sets a parameter.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// Get returns the raw value for key, or nil.
func (jp JobParameters) Get(key string) interface{} {
	if jp.Params == nil {
		return nil
	}
	return jp.Params[key]
}

// GetString returns the value for key as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	s, ok := jp.Get(key).(string)
	return s, ok
}

// GetInt64 returns the value for key as an int64. Whole floats (what a JSON round
// trip produces for longs) are accepted.
func (jp JobParameters) GetInt64(key string) (int64, bool) {
	switch v := jp.Get(key).(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// GetTime returns the value for key as a time.Time. RFC 3339 strings are accepted.
func (jp JobParameters) GetTime(key string) (time.Time, bool) {
	switch v := jp.Get(key).(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	}
	return time.Time{}, false
}

// Validate checks that every value has a supported type and that every required key is present.
func (jp JobParameters) Validate(requiredKeys ...string) error {
	for k, v := range jp.Params {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("job parameter name must not be empty")
		}
		switch v.(type) {
		case string, int, int32, int64, float32, float64, bool, time.Time, json.Number:
		default:
			return fmt.Errorf("job parameter '%s' has unsupported type %T", k, v)
		}
	}
	for _, k := range requiredKeys {
		if _, ok := jp.Params[k]; !ok {
			return fmt.Errorf("required job parameter '%s' is missing", k)
		}
	}
	return nil
}

// Hash returns the SHA-256 of the parameters' canonical JSON. Keys are sorted, so
// the hash does not depend on insertion order, and values hash the same before and
// after a JSON round trip through the metadata store.
func (jp JobParameters) Hash() (string, error) {
	canonical, err := jp.toCanonicalJSON()
	if err != nil {
		return "", exception.NewBatchError("job_parameters", "Failed to marshal JobParameters to canonical JSON for hash calculation", err, false, false)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

func (jp JobParameters) toCanonicalJSON() (string, error) {
	keys := make([]string, 0, len(jp.Params))
	for k := range jp.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		kb, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		vb, err := json.Marshal(jp.Params[k])
		if err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteString(",")
		}
		sb.Write(kb)
		sb.WriteString(":")
		sb.Write(vb)
	}
	sb.WriteString("}")
	return sb.String(), nil
}

// Equal compares two JobParameters by hash.
func (jp JobParameters) Equal(other JobParameters) bool {
	h1, err1 := jp.Hash()
	h2, err2 := other.Hash()
	return err1 == nil && err2 == nil && h1 == h2
}

// String renders the parameters as JSON with sensitive keys masked.
func (jp JobParameters) String() string {
	data, err := json.Marshal(serialization.GetMaskedJobParametersMap(jp.Params))
	if err != nil {
		return fmt.Sprintf("{[ERROR: Failed to marshal masked parameters: %v]}", err)
	}
	return string(data)
}

// Value implements driver.Valuer, storing the parameters as a JSON object.
func (jp JobParameters) Value() (driver.Value, error) {
	if jp.Params == nil {
		return "{}", nil
	}
	data, err := json.Marshal(jp.Params)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	b, err := scanBytes(value, "JobParameters")
	if err != nil {
		return err
	}
	jp.Params = make(map[string]interface{})
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &jp.Params); err != nil {
		return fmt.Errorf("failed to unmarshal JobParameters JSON: %w", err)
	}
	return nil
}

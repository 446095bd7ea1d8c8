package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// ExecutionContext is a key-value store persisted with a job or step execution.
// Readers and writers store their restart position in it.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put sets a value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns the value for key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns the value for key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	s, ok := ec[key].(string)
	return s, ok
}

// GetInt returns the value for key as an int. Whole float64 values, as produced by
// decoding a persisted context, are accepted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Remove deletes key.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// Copy returns a shallow copy. A nil context copies to an empty one.
func (ec ExecutionContext) Copy() ExecutionContext {
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer, storing the context as a JSON object.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	b, err := scanBytes(value, "ExecutionContext")
	if err != nil {
		return err
	}
	*ec = make(ExecutionContext)
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, ec); err != nil {
		return fmt.Errorf("failed to unmarshal ExecutionContext JSON: %w", err)
	}
	return nil
}

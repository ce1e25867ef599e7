package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONObject holds arbitrary user-supplied metadata. Only a JSON object is
// accepted at the top level; arrays, scalars and null are rejected at decode
// time so the constraint holds regardless of which entity carries the field.
type JSONObject map[string]interface{}

func (m *JSONObject) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("metadata must be a JSON object")
	}
	*m = obj
	return nil
}

func (m JSONObject) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*m = JSONObject{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", value)
	}

	if len(data) == 0 {
		*m = JSONObject{}
		return nil
	}
	return m.UnmarshalJSON(data)
}

func (JSONObject) GormDataType() string {
	return "text"
}

package models

import (
	"bytes"
	"encoding/json"
)

// FlexString decodes any JSON value into its textual form.
// null decodes to the empty string; objects and arrays keep their
// compacted JSON text.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*f = FlexString(buf.String())
	default:
		// numbers and booleans keep their literal text
		*f = FlexString(data)
	}
	return nil
}

// String returns the underlying text.
func (f FlexString) String() string {
	return string(f)
}

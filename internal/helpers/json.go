package helpers

import (
	"bytes"
	"encoding/json"
)

// MarshalJsonIndent encodes v without html escaping, indented with indent
// when it is not empty.
func MarshalJsonIndent(v any, indent string) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	err := enc.Encode(v)
	return buf.Bytes(), err
}

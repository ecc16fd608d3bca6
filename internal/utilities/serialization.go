package utilities

import (
	"encoding/json"
	"fmt"
)

// Codec is the "serialization" utility: a JSON codec with a stable
// configuration shared by every service on the platform.
type Codec struct {
	indent string
}

// NewCodec creates the serialization utility. indent is the optional
// indentation for human-facing output; empty means compact encoding.
func NewCodec(indent string) *Codec {
	return &Codec{indent: indent}
}

// Marshal encodes v as JSON.
func (c *Codec) Marshal(v any) ([]byte, error) {
	if c.indent != "" {
		return json.MarshalIndent(v, "", c.indent)
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

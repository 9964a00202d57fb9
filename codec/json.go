package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Use it when the summary must be byte-identical to what other
// encoding/json consumers produce.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// MarshalIndent encodes the value to indented JSON.
func (JSON) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used for run summaries.
var Default Codec = GoJSON{}

// Indenter is implemented by codecs that can produce indented output.
type Indenter interface {
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
}

// Pretty encodes v indented by two spaces when c supports it.
func Pretty(c Codec, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	if ind, ok := c.(Indenter); ok {
		return ind.MarshalIndent(v, "", "  ")
	}
	return c.Marshal(v)
}

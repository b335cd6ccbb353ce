// Package parser implements the JSONParser which encodes and decodes
// monitor and journal events in JSON format.
package parser

import (
	"encoding/json"

	"AcademyBot/internal/model"
)

// JSONParser implements EventCodec using JSON serialization.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// EncodeEvent encodes an Event into JSON.
func (p *JSONParser) EncodeEvent(e model.Event) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent decodes JSON into an Event.
func (p *JSONParser) DecodeEvent(b []byte) (model.Event, error) {
	var e model.Event
	err := json.Unmarshal(b, &e)
	return e, err
}

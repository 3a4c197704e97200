package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message protocol definitions

var ErrInvalidEnvelope = errors.New("invalid envelope")

// EventKind is the closed set of dock events the relay knows about.
// Anything else maps to EventUnrecognized and is still relayed.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventHotTrailer
	EventScheduleTrailer
	EventSetDoor
	EventTrailerArrived
	EventShipmentTrailerArrival
	EventSetShipmentDoor
	EventStartShipmentPick
	EventFinishShipmentPick
	EventNewShipment
	EventShipmentDepart
	EventShipmentStartLoading
	EventDeleteShipment
	EventShipmentHold
	EventVerifiedBy
)

var eventKindNames = map[EventKind]string{
	EventUnrecognized:           "unrecognized",
	EventHotTrailer:             "hot_trailer",
	EventScheduleTrailer:        "schedule_trailer",
	EventSetDoor:                "set_door",
	EventTrailerArrived:         "trailer_arrived",
	EventShipmentTrailerArrival: "shipment_trailer_arrival",
	EventSetShipmentDoor:        "set_shipment_door",
	EventStartShipmentPick:      "start_shipment_pick",
	EventFinishShipmentPick:     "finish_shipment_pick",
	EventNewShipment:            "new_shipment",
	EventShipmentDepart:         "shipment_depart",
	EventShipmentStartLoading:   "shipment_start_loading",
	EventDeleteShipment:         "delete_shipment",
	EventShipmentHold:           "shipment_hold",
	EventVerifiedBy:             "verified_by",
}

var eventKindsByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(eventKindNames))
	for k, name := range eventKindNames {
		if k != EventUnrecognized {
			m[name] = k
		}
	}
	return m
}()

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind maps a wire tag to its kind. Unknown tags (including the
// literal "unrecognized") yield EventUnrecognized.
func ParseEventKind(tag string) EventKind {
	if k, ok := eventKindsByName[tag]; ok {
		return k
	}
	return EventUnrecognized
}

// AllEventKinds returns the known kinds in declaration order, without
// EventUnrecognized.
func AllEventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(eventKindNames)-1)
	for k := EventHotTrailer; k <= EventVerifiedBy; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Envelope is the payload carried in every text frame:
// {"type": "<kind>", "data": {"message": "<string>"}}
type Envelope struct {
	Type string       `json:"type"`
	Data EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	Message string `json:"message"`
}

// constructor new envelope
func NewEnvelope(kind EventKind, message string) Envelope {
	return Envelope{Type: kind.String(), Data: EnvelopeData{Message: message}}
}

// Kind returns the parsed event kind of the envelope's type tag.
func (e Envelope) Kind() EventKind {
	return ParseEventKind(e.Type)
}

// ParseEnvelope decodes a text frame. Keys are matched exactly and may not
// repeat; "type" and "data.message" must be strings and "data" an object.
// Unknown extra fields are ignored.
func ParseEnvelope(data []byte) (Envelope, error) {
	top, err := decodeObject(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	typ, err := stringField(top, "type")
	if err != nil {
		return Envelope{}, err
	}
	rawData, ok := top["data"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing field \"data\"", ErrInvalidEnvelope)
	}
	inner, err := decodeObject(rawData)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: data: %v", ErrInvalidEnvelope, err)
	}
	msg, err := stringField(inner, "message")
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Data: EnvelopeData{Message: msg}}, nil
}

// decodeObject walks one JSON object and returns its members by exact key.
// A repeated key is an error.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, errors.New("malformed JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object")
	}

	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string) // object keys are always strings in valid JSON
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("duplicate field %q", key)
		}
		fields[key] = value
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrInvalidEnvelope, key)
	}
	// null would decode into a string without complaint
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: field %q must be a string", ErrInvalidEnvelope, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %q: %v", ErrInvalidEnvelope, key, err)
	}
	return s, nil
}

// Encode returns the compact JSON form of the envelope. HTML characters and
// line separators are left unescaped so relayed payloads match what the
// sender wrote.
func (e Envelope) Encode() ([]byte, error) {
	return encodeRaw(e)
}

func encodeRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes encoding/json
// always emits back into raw runes. Other escape pairs are copied untouched,
// so an escaped backslash followed by "u2028" stays as it was.
func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if b[i+1] == 'u' && i+6 <= len(b) {
			switch string(b[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

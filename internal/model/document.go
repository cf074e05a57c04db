package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Car identifies the vehicle a document is about. Unknown JSON fields are
// kept in Extra.
type Car struct {
	Brand string
	Model string
	Extra map[string]any
}

// Metadata describes the subject of a document. It is opaque to the storage
// layer and passed through to delivery unchanged.
// Unknown JSON fields are kept in Extra and written back inline. A known key
// whose value is not a JSON string is read as text and its original value is
// kept in Extra, so it is written back as it came in.
type Metadata struct {
	CompanyCode string
	CompanyName string
	Date        string
	Car         Car
	Extra       map[string]any
}

var (
	metadataKeys = []string{"companyCode", "companyName", "date", "car"}
	carKeys      = []string{"brand", "model"}
)

func isKnown(keys []string, k string) bool {
	for _, known := range keys {
		if k == known {
			return true
		}
	}
	return false
}

// decodeObject decodes a JSON object keeping numbers exact.
func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// scalarText renders a JSON scalar as text. isString is false for anything
// that was not a JSON string.
func scalarText(v any) (text string, isString bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), false
	case bool:
		return strconv.FormatBool(t), false
	default:
		return "", false
	}
}

// readText sets *dst from raw[key]. A non-string value is also copied to
// extra so it survives a round trip.
func readText(raw map[string]any, key string, dst *string, extra map[string]any) {
	v, ok := raw[key]
	if !ok {
		return
	}
	text, isString := scalarText(v)
	*dst = text
	if !isString {
		extra[key] = v
	}
}

// putText writes a known key: the original value in extra while the field
// still matches it, the field otherwise. Empty strings are left out.
func putText(out, extra map[string]any, key, field string) {
	if v, ok := extra[key]; ok {
		if text, _ := scalarText(v); text == field {
			out[key] = v
			return
		}
	}
	if field != "" {
		out[key] = field
	}
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func (c Car) isZero() bool {
	return c.Brand == "" && c.Model == "" && len(c.Extra) == 0
}

func (c Car) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+len(carKeys))
	for k, v := range c.Extra {
		if !isKnown(carKeys, k) {
			out[k] = v
		}
	}
	putText(out, c.Extra, "brand", c.Brand)
	putText(out, c.Extra, "model", c.Model)
	return json.Marshal(out)
}

func (c *Car) UnmarshalJSON(b []byte) error {
	raw, err := decodeObject(b)
	if err != nil {
		return err
	}
	c.fromMap(raw)
	return nil
}

func (c *Car) fromMap(raw map[string]any) {
	*c = Car{}
	extra := make(map[string]any)
	readText(raw, "brand", &c.Brand, extra)
	readText(raw, "model", &c.Model, extra)
	for k, v := range raw {
		if !isKnown(carKeys, k) {
			extra[k] = v
		}
	}
	c.Extra = nilIfEmpty(extra)
}

// MarshalJSON flattens Extra next to the known fields. Empty text fields
// are omitted; car is always written.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(metadataKeys))
	for k, v := range m.Extra {
		if !isKnown(metadataKeys, k) {
			out[k] = v
		}
	}
	putText(out, m.Extra, "companyCode", m.CompanyCode)
	putText(out, m.Extra, "companyName", m.CompanyName)
	putText(out, m.Extra, "date", m.Date)
	if v, ok := m.Extra["car"]; ok && m.Car.isZero() {
		out["car"] = v
	} else {
		out["car"] = m.Car
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields leniently and keeps the rest in Extra.
// A car value that is not an object is kept as is in Extra.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	raw, err := decodeObject(b)
	if err != nil {
		return err
	}
	*m = Metadata{}
	extra := make(map[string]any)
	readText(raw, "companyCode", &m.CompanyCode, extra)
	readText(raw, "companyName", &m.CompanyName, extra)
	readText(raw, "date", &m.Date, extra)
	if v, ok := raw["car"]; ok {
		if obj, isObj := v.(map[string]any); isObj {
			m.Car.fromMap(obj)
		} else {
			extra["car"] = v
		}
	}
	for k, v := range raw {
		if !isKnown(metadataKeys, k) {
			extra[k] = v
		}
	}
	m.Extra = nilIfEmpty(extra)
	return nil
}

// Document is a pending document: saved locally, not yet confirmed delivered.
// Documents are immutable once saved.
type Document struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	Metadata  Metadata  `json:"entry"`
	Payload   []byte    `json:"-"`
	DataURI   string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

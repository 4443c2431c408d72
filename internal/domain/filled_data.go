package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a raw filled_data value. Number records whether it arrived as a
// JSON number so it is written back the same way.
type Value struct {
	Text   string
	Number bool
}

// Entry is one key/value pair of FilledData.
type Entry struct {
	Key   string
	Value Value
}

// FilledData is the ordered key -> raw value mapping of a document.
// Key order is the order the keys were first set (or decoded).
type FilledData []Entry

func (d FilledData) index(key string) int {
	for i := range d {
		if d[i].Key == key {
			return i
		}
	}
	return -1
}

// Get returns the raw text for key. Blank strings count as absent.
func (d FilledData) Get(key string) (string, bool) {
	i := d.index(key)
	if i < 0 {
		return "", false
	}
	v := strings.TrimSpace(d[i].Value.Text)
	return v, v != ""
}

func (d FilledData) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set replaces key in place or appends it.
func (d *FilledData) Set(key, text string) { d.put(key, Value{Text: text}) }

// SetNumber is Set for numeric values; text must be a JSON number.
func (d *FilledData) SetNumber(key, text string) { d.put(key, Value{Text: text, Number: true}) }

func (d *FilledData) put(key string, v Value) {
	if i := d.index(key); i >= 0 {
		(*d)[i].Value = v
		return
	}
	*d = append(*d, Entry{Key: key, Value: v})
}

// Keys returns the keys in order.
func (d FilledData) Keys() []string {
	keys := make([]string, len(d))
	for i := range d {
		keys[i] = d[i].Key
	}
	return keys
}

// Merge applies patch on top of d: existing keys are overwritten in place,
// new keys are appended in patch order.
func (d FilledData) Merge(patch FilledData) FilledData {
	out := make(FilledData, len(d), len(d)+len(patch))
	copy(out, d)
	for _, e := range patch {
		out.put(e.Key, e.Value)
	}
	return out
}

func (d FilledData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if e.Value.Number {
			if !json.Valid([]byte(e.Value.Text)) {
				return nil, fmt.Errorf("filled_data %q: %q is not a number", e.Key, e.Value.Text)
			}
			buf.WriteString(e.Value.Text)
			continue
		}
		v, err := json.Marshal(e.Value.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object keeping key order. Strings and
// numbers are kept verbatim, booleans become "true"/"false", nulls are
// dropped. Nested objects and arrays are rejected.
func (d *FilledData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("filled_data: expected object, got %v", tok)
	}

	out := FilledData{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("filled_data: expected key, got %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case string:
			out.Set(key, v)
		case json.Number:
			out.SetNumber(key, v.String())
		case bool:
			out.Set(key, fmt.Sprint(v))
		case nil:
		default:
			return fmt.Errorf("filled_data %q: nested values are not supported", key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

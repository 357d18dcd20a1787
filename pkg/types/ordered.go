package types

import (
	"bytes"
	"encoding/json"
)

// OrderedMap is a JSON object whose members marshal in insertion order.
// The resolver and the schema marshaller use it to keep tool output
// deterministic; encoding/json maps would randomize key order.
type OrderedMap struct {
	keys   []string
	values map[string]interface{}
}

// NewOrderedMap returns an empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]interface{})}
}

// Set adds or replaces a member. A replaced member keeps its original
// position.
func (m *OrderedMap) Set(key string, value interface{}) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it exists.
func (m *OrderedMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *OrderedMap) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Delete removes a member if present.
func (m *OrderedMap) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the member count.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// Keys returns the member keys in insertion order. The returned slice is
// shared; callers must not mutate it.
func (m *OrderedMap) Keys() []string {
	return m.keys
}

// MarshalJSON emits the members in insertion order.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving member order.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = make(map[string]interface{})

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	// consume opening brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value interface{}
		if err := decodeOrderedValue(dec, &value); err != nil {
			return err
		}
		m.Set(key, value)
	}
	// consume closing brace
	_, err := dec.Token()
	return err
}

// decodeOrderedValue decodes the next value from dec, turning nested
// objects into *OrderedMap so order survives arbitrarily deep.
func decodeOrderedValue(dec *json.Decoder, out *interface{}) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewOrderedMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := keyTok.(string)
				var v interface{}
				if err := decodeOrderedValue(dec, &v); err != nil {
					return err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			*out = obj
		case '[':
			var arr []interface{}
			for dec.More() {
				var v interface{}
				if err := decodeOrderedValue(dec, &v); err != nil {
					return err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			*out = arr
		}
	default:
		*out = tok
	}
	return nil
}

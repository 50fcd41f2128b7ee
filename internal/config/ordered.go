package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a string-keyed map that remembers the order in which keys
// were declared in the source document. Toolboxes and servers are connected
// and listed in that order.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// Set adds or replaces a value. New keys are appended to the order.
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m OrderedMap[V]) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in declaration order.
func (m OrderedMap[V]) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// All iterates over the entries in declaration order.
func (m OrderedMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// UnmarshalJSON decodes a JSON object, keeping key order and rejecting
// duplicate keys.
func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	*m = OrderedMap[V]{}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected an object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}
		if _, dup := m.values[key]; dup {
			return fmt.Errorf("duplicate key %q", key)
		}

		var value V
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		m.Set(key, value)
	}

	// closing brace
	_, err = dec.Token()
	return err
}

// UnmarshalYAML decodes a YAML mapping, keeping key order and rejecting
// duplicate keys.
func (m *OrderedMap[V]) UnmarshalYAML(node *yaml.Node) error {
	*m = OrderedMap[V]{}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if _, dup := m.values[key]; dup {
			return fmt.Errorf("line %d: duplicate key %q", keyNode.Line, key)
		}

		var value V
		if err := valueNode.Decode(&value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		m.Set(key, value)
	}

	return nil
}

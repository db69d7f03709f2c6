package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v2"
)

// Annotation keys carry metadata about a node and are never descended into.
var annotationKeys = map[string]bool{
	"alternative_names":     true,
	"primary_name":          true,
	"abbreviations":         true,
	"typos":                 true,
	"notes":                 true,
	"erp_variations":        true,
	"hierarchical_patterns": true,
	"industry_specific":     true,
}

// Node is one entry of a chart-of-accounts tree. Children keep document order.
// A node built from a list of objects has Seq set and holds the list items as children.
type Node struct {
	Key              string
	PrimaryName      string
	AlternativeNames []string
	Seq              bool
	Children         []*Node
	// Attrs holds annotation and scalar values so documents survive a round trip.
	Attrs yaml.MapSlice
}

// Walk visits the node and its descendants depth-first in document order.
// It stops as soon as fn returns false. depth is 0 for the node Walk is called on.
func (n *Node) Walk(fn func(node *Node, depth int) bool) bool {
	return n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) bool {
	if n == nil {
		return true
	}
	if !fn(n, depth) {
		return false
	}
	for _, c := range n.Children {
		childDepth := depth + 1
		if n.Seq {
			// List items sit at the same level as their list.
			childDepth = depth
		}
		if !c.walk(fn, childDepth) {
			return false
		}
	}
	return true
}

// Matches reports whether s names this node, by primary name or alternative name, case-insensitively.
func (n *Node) Matches(s string) bool {
	needle := strings.ToLower(strings.TrimSpace(s))
	if n.PrimaryName != "" && strings.ToLower(n.PrimaryName) == needle {
		return true
	}
	if n.PrimaryName == "" {
		return false
	}
	for _, alt := range n.AlternativeNames {
		if strings.ToLower(alt) == needle {
			return true
		}
	}
	return false
}

// Child returns the direct child with the given key.
func (n *Node) Child(key string) *Node {
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Node) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return fmt.Errorf("decode node: %w", err)
	}
	built, err := nodeFromMapSlice(n.Key, ms)
	if err != nil {
		return err
	}
	*n = *built
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.toMapSlice(), nil
}

// UnmarshalJSON decodes an object while keeping key order.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeOrderedJSON(dec)
	if err != nil {
		return fmt.Errorf("decode node: %w", err)
	}
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return fmt.Errorf("decode node: expected object, got %T", v)
	}
	built, err := nodeFromMapSlice(n.Key, ms)
	if err != nil {
		return err
	}
	*n = *built
	return nil
}

// MarshalJSON encodes the node as an object in document order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeOrderedJSON(&buf, n.toMapSlice()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nodeFromMapSlice(key string, ms yaml.MapSlice) (*Node, error) {
	n := &Node{Key: key}
	for _, item := range ms {
		k := fmt.Sprint(item.Key)
		switch {
		case k == "primary_name":
			if item.Value != nil {
				n.PrimaryName = strings.TrimSpace(fmt.Sprint(item.Value))
			}
		case k == "alternative_names":
			names, err := stringList(item.Value)
			if err != nil {
				return nil, fmt.Errorf("node %q: alternative_names: %w", key, err)
			}
			n.AlternativeNames = names
		case annotationKeys[k]:
			n.Attrs = append(n.Attrs, yaml.MapItem{Key: k, Value: item.Value})
		default:
			child, err := childFromValue(k, item.Value)
			if err != nil {
				return nil, err
			}
			if child == nil {
				n.Attrs = append(n.Attrs, yaml.MapItem{Key: k, Value: item.Value})
				continue
			}
			n.Children = append(n.Children, child)
		}
	}
	return n, nil
}

// childFromValue returns nil for values that are not nodes (scalars, lists of scalars).
func childFromValue(key string, v interface{}) (*Node, error) {
	switch val := v.(type) {
	case yaml.MapSlice:
		return nodeFromMapSlice(key, val)
	case []interface{}:
		seq := &Node{Key: key, Seq: true}
		for i, item := range val {
			ms, ok := item.(yaml.MapSlice)
			if !ok {
				return nil, nil
			}
			child, err := nodeFromMapSlice(fmt.Sprintf("%s[%d]", key, i), ms)
			if err != nil {
				return nil, err
			}
			seq.Children = append(seq.Children, child)
		}
		if len(seq.Children) == 0 {
			return nil, nil
		}
		return seq, nil
	}
	return nil, nil
}

func stringList(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.TrimSpace(fmt.Sprint(item)))
	}
	return out, nil
}

func (n *Node) toMapSlice() yaml.MapSlice {
	var ms yaml.MapSlice
	if n.PrimaryName != "" {
		ms = append(ms, yaml.MapItem{Key: "primary_name", Value: n.PrimaryName})
	}
	if len(n.AlternativeNames) > 0 {
		alts := make([]interface{}, len(n.AlternativeNames))
		for i, a := range n.AlternativeNames {
			alts[i] = a
		}
		ms = append(ms, yaml.MapItem{Key: "alternative_names", Value: alts})
	}
	ms = append(ms, n.Attrs...)
	for _, c := range n.Children {
		if c.Seq {
			items := make([]interface{}, len(c.Children))
			for i, item := range c.Children {
				items[i] = item.toMapSlice()
			}
			ms = append(ms, yaml.MapItem{Key: c.Key, Value: items})
			continue
		}
		ms = append(ms, yaml.MapItem{Key: c.Key, Value: c.toMapSlice()})
	}
	return ms
}

// decodeOrderedJSON reads one JSON value, returning objects as yaml.MapSlice.
func decodeOrderedJSON(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var ms yaml.MapSlice
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeOrderedJSON(dec)
				if err != nil {
					return nil, err
				}
				ms = append(ms, yaml.MapItem{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return ms, nil
		case '[':
			items := []interface{}{}
			for dec.More() {
				val, err := decodeOrderedJSON(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return t, nil
	}
}

func writeOrderedJSON(w io.Writer, v interface{}) error {
	switch val := v.(type) {
	case yaml.MapSlice:
		if _, err := io.WriteString(w, "{"); err != nil {
			return err
		}
		for i, item := range val {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			key, err := json.Marshal(fmt.Sprint(item.Key))
			if err != nil {
				return err
			}
			if _, err := w.Write(append(key, ':')); err != nil {
				return err
			}
			if err := writeOrderedJSON(w, item.Value); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "}")
		return err
	case []interface{}:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i, item := range val {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if err := writeOrderedJSON(w, item); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode %T: %w", val, err)
		}
		_, err = w.Write(b)
		return err
	}
}

// Package document models the declarative UI tree returned by a resource
// fetch. The tree is opaque: nested map[string]any and []any values with JSON
// scalars at the leaves. Only two node shapes are recognised: image nodes and
// state-container nodes. Everything else is carried through untouched.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Node is any value of a decoded document: map[string]any, []any, string,
// float64, bool or nil.
type Node = any

// Field names and tags of the recognised node shapes.
const (
	FieldType     = "type"
	FieldID       = "id"
	FieldImageURL = "image_url"
	FieldStateID  = "state_id"
	FieldRevision = "_rev"

	TypeImage = "image"
	TypeState = "state"
)

// DefaultStateTarget is the state-container identifier assumed for state
// nodes that carry no id of their own.
const DefaultStateTarget = "lesson_card_state"

// Decode parses a JSON body into a document tree.
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var n Node
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("document: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("document: decode: trailing data after document")
	}
	return n, nil
}

// Encode serialises a document tree to JSON.
func Encode(n Node) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return data, nil
}

// Clone returns a deep, independent copy of n. Maps and slices are copied
// recursively; scalars are copied by value.
func Clone(n Node) Node {
	switch v := n.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// Walk visits n and all of its descendants depth-first, parents before
// children. Map entries are visited in sorted key order so that traversal
// is deterministic. The walk stops as soon as visit returns false.
func Walk(n Node, visit func(Node) bool) {
	walk(n, visit)
}

func walk(n Node, visit func(Node) bool) bool {
	if !visit(n) {
		return false
	}
	switch v := n.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !walk(v[k], visit) {
				return false
			}
		}
	case []any:
		for _, child := range v {
			if !walk(child, visit) {
				return false
			}
		}
	}
	return true
}

// Predicate selects mapping nodes of interest.
type Predicate func(m map[string]any) bool

// Collect returns every mapping node of n that satisfies pred, in walk order.
func Collect(n Node, pred Predicate) []map[string]any {
	var out []map[string]any
	Walk(n, func(node Node) bool {
		if m, ok := node.(map[string]any); ok && pred(m) {
			out = append(out, m)
		}
		return true
	})
	return out
}

// Find returns the first mapping node of n that satisfies pred.
func Find(n Node, pred Predicate) (map[string]any, bool) {
	var found map[string]any
	Walk(n, func(node Node) bool {
		if m, ok := node.(map[string]any); ok && pred(m) {
			found = m
			return false
		}
		return true
	})
	return found, found != nil
}

// IsImage reports whether m is an image-reference node.
func IsImage(m map[string]any) bool {
	if m[FieldType] != TypeImage {
		return false
	}
	_, ok := m[FieldImageURL].(string)
	return ok
}

// IsState returns a predicate matching the state-container node addressed
// by target. A node without an id (absent, null, empty, zero or false)
// answers to DefaultStateTarget only; a non-string id matches nothing.
func IsState(target string) Predicate {
	return func(m map[string]any) bool {
		if m[FieldType] != TypeState {
			return false
		}
		switch id := m[FieldID].(type) {
		case string:
			if id == "" {
				return target == DefaultStateTarget
			}
			return id == target
		case nil:
			return target == DefaultStateTarget
		case bool:
			return !id && target == DefaultStateTarget
		case float64:
			return id == 0 && target == DefaultStateTarget
		case int:
			return id == 0 && target == DefaultStateTarget
		}
		return false
	}
}

// ImageURLs returns the image URLs referenced by n, deduplicated, in walk
// order.
func ImageURLs(n Node) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, m := range Collect(n, IsImage) {
		u := m[FieldImageURL].(string)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// Revision returns the reconciler revision counter stored on a state node.
func Revision(m map[string]any) int {
	switch v := m[FieldRevision].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	}
	return 0
}

// SetState writes state into the node's state field and bumps its revision,
// so that a renderer diffing by value sees a change even when state is
// unchanged.
func SetState(m map[string]any, state any) {
	m[FieldStateID] = state
	m[FieldRevision] = Revision(m) + 1
}

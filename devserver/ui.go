package devserver

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/horosafe"
)

const (
	includeKey      = "$include"
	maxIncludeDepth = 16
	maxPageBytes    = 4 << 20
)

var errIncludeDepth = errors.New("devserver: $include nested too deep")

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := horosafe.LimitedReadAll(f, maxPageBytes)
	if err != nil {
		return nil, fmt.Errorf("devserver: read %s: %w", path, err)
	}
	return data, nil
}

// readJSON loads one document from disk.
func readJSON(path string) (document.Node, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return document.Decode(data)
}

// resolveIncludes replaces every {"$include": "<file>.json"} mapping with the
// referenced document, recursively. Paths starting with components/ or pages/
// are rooted at the UI dir; others are relative to the including file. An
// include that escapes the UI dir is an error; a missing file becomes a
// visible placeholder.
func (s *Server) resolveIncludes(n document.Node, baseDir string, depth int) (document.Node, error) {
	if depth > maxIncludeDepth {
		return nil, errIncludeDepth
	}
	switch v := n.(type) {
	case map[string]any:
		if inc, ok := v[includeKey].(string); ok {
			path, err := s.includePath(inc, baseDir)
			if err != nil {
				return nil, err
			}
			loaded, err := readJSON(path)
			if errors.Is(err, os.ErrNotExist) {
				return missingComponent(inc), nil
			}
			if err != nil {
				return nil, err
			}
			return s.resolveIncludes(loaded, filepath.Dir(path), depth+1)
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			r, err := s.resolveIncludes(child, baseDir, depth)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			r, err := s.resolveIncludes(child, baseDir, depth)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return n, nil
	}
}

func (s *Server) includePath(inc, baseDir string) (string, error) {
	inc = strings.TrimLeft(inc, "/")
	if strings.HasPrefix(inc, "components/") || strings.HasPrefix(inc, "pages/") {
		return horosafe.SafePath(s.uiDir, inc)
	}
	p := filepath.Clean(filepath.Join(baseDir, inc))
	if p != s.uiDir && !strings.HasPrefix(p, s.uiDir+string(filepath.Separator)) {
		return "", fmt.Errorf("devserver: $include %q: %w", inc, horosafe.ErrPathTraversal)
	}
	return p, nil
}

func missingComponent(path string) map[string]any {
	return map[string]any{
		"type":  "container",
		"width": map[string]any{"type": "match_parent"},
		"items": []any{
			map[string]any{
				"type":                      "text",
				"text":                      "component not found: " + path,
				"text_alignment_horizontal": "center",
				"paddings":                  map[string]any{"top": 8.0, "bottom": 8.0},
			},
		},
		"background": []any{map[string]any{"type": "solid", "color": "#FFF0B3"}},
		"border":     map[string]any{"corner_radius": 8.0},
		"margins":    map[string]any{"top": 4.0, "bottom": 4.0},
	}
}

// loadTokens reads the colour tokens of theme. A missing or broken tokens
// file yields no tokens.
func (s *Server) loadTokens(theme string) map[string]any {
	path, err := horosafe.SafePath(filepath.Join(s.uiDir, "tokens"), "colors."+theme+".json")
	if err != nil {
		return nil
	}
	n, err := readJSON(path)
	if err != nil {
		return nil
	}
	m, _ := n.(map[string]any)
	return m
}

// applyTokens substitutes "@a.b.c" strings with the token at that dotted
// path. Unknown tokens are left as is.
func applyTokens(n document.Node, tokens map[string]any) document.Node {
	if len(tokens) == 0 {
		return n
	}
	switch v := n.(type) {
	case map[string]any:
		for k, child := range v {
			v[k] = applyTokens(child, tokens)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = applyTokens(child, tokens)
		}
		return v
	case string:
		if !strings.HasPrefix(v, "@") {
			return v
		}
		if tok, ok := lookupToken(tokens, v[1:]); ok {
			return tok
		}
		return v
	default:
		return n
	}
}

func lookupToken(tokens map[string]any, dotted string) (any, bool) {
	var cur any = tokens
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// renderFile loads a page file, expands its includes and applies tokens.
func (s *Server) renderFile(path string) (document.Node, error) {
	n, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	n, err = s.resolveIncludes(n, filepath.Dir(path), 0)
	if err != nil {
		return nil, err
	}
	return applyTokens(n, s.loadTokens(s.theme)), nil
}

func hasID(id string) document.Predicate {
	return func(m map[string]any) bool {
		v, ok := m[document.FieldID].(string)
		return ok && v == id
	}
}

// patchByID merges updates into every node with the given id. A nil
// "action" update removes the node's action. It reports whether any node
// matched.
func patchByID(tree document.Node, id string, updates map[string]any) bool {
	nodes := document.Collect(tree, hasID(id))
	for _, m := range nodes {
		for k, v := range updates {
			if k == "action" && v == nil {
				delete(m, k)
				continue
			}
			m[k] = v
		}
	}
	return len(nodes) > 0
}

// replaceByID swaps the contents of the first node with the given id for
// replacement.
func replaceByID(tree document.Node, id string, replacement map[string]any) bool {
	m, ok := document.Find(tree, hasID(id))
	if !ok {
		return false
	}
	clear(m)
	for k, v := range replacement {
		m[k] = v
	}
	return true
}

// setVariables upserts card-level variables. Numbers get type "number",
// everything else "string".
func setVariables(root document.Node, values map[string]any) {
	top, ok := root.(map[string]any)
	if !ok {
		return
	}
	card := top
	if c, ok := top["card"].(map[string]any); ok {
		card = c
	}
	vars, _ := card["variables"].([]any)
	byName := map[string]map[string]any{}
	for _, v := range vars {
		if m, ok := v.(map[string]any); ok {
			if name, ok := m["name"].(string); ok && name != "" {
				byName[name] = m
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		val := values[name]
		typ := "string"
		switch val.(type) {
		case int, float64:
			typ = "number"
		}
		if m, ok := byName[name]; ok {
			m["type"] = typ
			m["value"] = val
			continue
		}
		vars = append(vars, map[string]any{"name": name, "type": typ, "value": val})
	}
	card["variables"] = vars
}

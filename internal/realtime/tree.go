package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// splitPath turns "a/b/c" into its segments, ignoring leading, trailing and
// repeated slashes.
func splitPath(path string) ([]string, error) {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return segs, nil
}

func joinPath(segs []string) string {
	return strings.Join(segs, "/")
}

func indexKey(i int) string {
	return strconv.Itoa(i)
}

// normalize converts an arbitrary Go value into the generic JSON tree the
// backends store, dropping nulls and empty objects the way the hosted
// database does.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return decodeTree(data)
}

func decodeTree(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, child := range n {
			if p := prune(child); p == nil {
				delete(n, k)
			} else {
				n[k] = p
			}
		}
		if len(n) == 0 {
			return nil
		}
		return n
	case []any:
		empty := true
		for i, child := range n {
			n[i] = prune(child)
			if n[i] != nil {
				empty = false
			}
		}
		if empty {
			return nil
		}
		return n
	}
	return v
}

func encodeTree(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func getAt(node any, segs []string) any {
	for _, s := range segs {
		switch n := node.(type) {
		case map[string]any:
			node = n[s]
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(n) {
				return nil
			}
			node = n[i]
		default:
			return nil
		}
	}
	return node
}

// setAt writes value at segs below node and returns the new node. A nil value
// deletes the key, and parents left empty are removed as well.
func setAt(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	var m map[string]any
	switch n := node.(type) {
	case map[string]any:
		m = n
	case []any:
		m = make(map[string]any, len(n))
		for i, child := range n {
			if child != nil {
				m[indexKey(i)] = child
			}
		}
	default:
		m = map[string]any{}
	}
	child := setAt(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// childPath appends a relative key (which may contain slashes) to base.
func childPath(base []string, key string) ([]string, error) {
	rel, err := splitPath(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(base)+len(rel))
	out = append(out, base...)
	return append(out, rel...), nil
}

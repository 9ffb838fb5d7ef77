package store

import (
	"encoding/json"
	"math"
)

// ChunkRange calls fn for consecutive [start,end) windows of at most
// chunkSize items.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings drops empty and repeated values, keeping first occurrence
// order.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// NormalizeProps round-trips props through JSON so that every backend sees
// the same value shapes (numbers as float64, slices as []any).
func NormalizeProps(props map[string]any) (map[string]any, error) {
	if props == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// String reads a string prop, "" when absent or of another type.
func (n Node) String(key string) string {
	if v, ok := n.Props[key].(string); ok {
		return v
	}
	return ""
}

// Int reads a numeric prop, or -1 when absent.
func (n Node) Int(key string) int {
	switch v := n.Props[key].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		i, err := v.Int64()
		if err == nil {
			return int(i)
		}
	}
	return -1
}

// Ints reads a list-of-numbers prop.
func (n Node) Ints(key string) []int {
	switch v := n.Props[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, x := range v {
			if f, ok := x.(float64); ok {
				out = append(out, int(math.Round(f)))
			}
		}
		return out
	}
	return []int{}
}

// Strings reads a list-of-strings prop.
func (n Node) Strings(key string) []string {
	switch v := n.Props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// Map reads an object prop.
func (n Node) Map(key string) map[string]any {
	if v, ok := n.Props[key].(map[string]any); ok {
		return v
	}
	return nil
}

// HasTag reports whether the node carries the secondary label tag.
func (n Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

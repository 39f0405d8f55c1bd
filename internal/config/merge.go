package config

// Merge deep-merges overlay into a copy of base. Nested objects are merged key by key;
// for any other value the overlay wins only when overwrite is set or base lacks the key.
func Merge(base, overlay map[string]any, overwrite bool) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = clone(v)
	}
	for k, v := range overlay {
		cur, ok := out[k]
		if !ok {
			out[k] = clone(v)
			continue
		}
		cm, curIsMap := cur.(map[string]any)
		om, overIsMap := v.(map[string]any)
		if curIsMap && overIsMap {
			out[k] = Merge(cm, om, overwrite)
			continue
		}
		if overwrite {
			out[k] = clone(v)
		}
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Merge(t, nil, false)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = clone(t[i])
		}
		return out
	default:
		return v
	}
}

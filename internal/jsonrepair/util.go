package jsonrepair

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Minify returns data as compact JSON. Strings are treated as JSON text.
func Minify(data any) (string, error) {
	if s, ok := data.(string); ok {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(s)); err != nil {
			return "", eris.Wrap(err, "jsonrepair: minify")
		}
		return buf.String(), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", eris.Wrap(err, "jsonrepair: minify")
	}
	return string(b), nil
}

// Pretty returns data as indented JSON. Strings are treated as JSON text.
func Pretty(data any, indent int) (string, error) {
	pad := string(bytes.Repeat([]byte(" "), indent))
	if s, ok := data.(string); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(s), "", pad); err != nil {
			return "", eris.Wrap(err, "jsonrepair: pretty")
		}
		return buf.String(), nil
	}
	b, err := json.MarshalIndent(data, "", pad)
	if err != nil {
		return "", eris.Wrap(err, "jsonrepair: pretty")
	}
	return string(b), nil
}

// Merge deep-merges update into a copy of base. Nested objects merge key by
// key; any other value in update replaces the one in base.
func Merge(base, update map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		if um, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = Merge(bm, um)
				continue
			}
		}
		out[k] = v
	}
	return out
}

package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
)

// paramRegex finds %{name} placeholders. Dotted names reach into nested objects.
var paramRegex = regexp.MustCompile(`%\{([^}]+)\}`)

// flatten turns a JSON object into dotted keys: {"order":{"id":7}} -> "order.id" = "7".
func flatten(payload json.RawMessage) (map[string]string, error) {
	out := make(map[string]string)
	if len(bytes.TrimSpace(payload)) == 0 {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if root == nil {
		return out, nil
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, ErrInvalidPayload
	}

	flattenInto(out, "", obj)
	return out, nil
}

func flattenInto(out map[string]string, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]any:
			flattenInto(out, key, val)
			b, _ := json.Marshal(val)
			out[key] = string(b)
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			out[key] = strconv.FormatBool(val)
		case nil:
			out[key] = ""
		default:
			b, _ := json.Marshal(val)
			out[key] = string(b)
		}
	}
}

// substitute replaces every placeholder in tmpl. Unknown names are collected
// and reported instead of being left in the output.
func substitute(tmpl string, params map[string]string, escapeHTML bool) (string, []string) {
	var missing []string
	result := paramRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[2 : len(match)-1]
		val, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		if escapeHTML {
			return html.EscapeString(val)
		}
		return val
	})
	return result, missing
}

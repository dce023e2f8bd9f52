package block

import (
	"encoding/json"
	"strconv"
)

// Known metadata keys. Unknown keys are preserved as they are.
const (
	KeyFontSize     = "fontSize"
	KeyIsBold       = "isBold"
	KeyIsItalic     = "isItalic"
	KeyIsUnderlined = "isUnderlined"
	KeyAlt          = "alt"
	KeyWidth        = "width"
	KeyHeight       = "height"
	KeyAlignment    = "alignment"
	KeyTextWrap     = "textWrap"
	KeyCaption      = "caption"
	KeyAuthor       = "author"
	KeyFileName     = "fileName"
	KeyFileType     = "fileType"
	KeyLanguage     = "language"
)

// Metadata is the variant specific attribute bag of a block.
type Metadata map[string]interface{}

// Clone returns a deep copy of m (nested maps and slices included).
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = cloneValue(vv)
		}
		return out
	case Metadata:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// Merge returns a copy of m with patch applied on top. A nil value in patch removes the key.
func (m Metadata) Merge(patch Metadata) Metadata {
	if len(patch) == 0 {
		return m.Clone()
	}
	out := m.Clone()
	if out == nil {
		out = make(Metadata, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = cloneValue(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (m Metadata) Bool(key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Int reads a numeric value, whatever the decoder made of it (JSON numbers are float64).
func (m Metadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(v)
		return i
	}
	return 0
}

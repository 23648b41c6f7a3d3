package interchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Variant is the schema generation an import entry was written in.
type Variant string

const (
	VariantCurrent              Variant = "current"
	VariantLegacyTrap           Variant = "legacy-trap"
	VariantLegacyCounterfactual Variant = "legacy-counterfactual"
	VariantUnknown              Variant = "unknown"
)

type object map[string]json.RawMessage

func (o object) has(keys ...string) bool {
	for _, k := range keys {
		raw, ok := o[k]
		if ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return true
		}
	}
	return false
}

// str returns the first non-empty string (or number) among keys.
func (o object) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (o object) strings(key string) []string {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && strings.TrimSpace(one) != "" {
		return []string{one}
	}
	return nil
}

// Classify sniffs the field combination of an entry; declared type tags are ignored
// because older producers set them inconsistently.
func Classify(o map[string]json.RawMessage) Variant {
	obj := object(o)
	switch {
	case obj.has("tier") && obj.has("category_code"):
		return VariantCurrent
	case obj.has("counterfactual_claim") || (obj.has("ground_truth") && obj.has("invariants")):
		return VariantLegacyCounterfactual
	case obj.has("trap_type", "trap") && obj.has("answer"):
		return VariantLegacyTrap
	default:
		return VariantUnknown
	}
}

// decodeEntries accepts an export document, a bare array, or a single entry.
func decodeEntries(raw []byte) ([]object, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	switch raw[0] {
	case '[':
		var list []object
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
		return list, nil
	case '{':
		var top object
		if err := json.Unmarshal(raw, &top); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		for _, key := range []string{"cases", "entries", "items"} {
			if inner, ok := top[key]; ok {
				var list []object
				if err := json.Unmarshal(inner, &list); err != nil {
					return nil, fmt.Errorf("decode %s: %w", key, err)
				}
				return list, nil
			}
		}
		return []object{top}, nil
	default:
		return nil, fmt.Errorf("document must be a JSON object or array")
	}
}

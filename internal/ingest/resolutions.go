package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"CaseCurator/internal/domain"
)

var resolutionKeyPairs = [][2]string{
	{"answer_if_condition_1", "answer_if_condition_2"},
	{"condition_a", "condition_b"},
}

// coerceResolutions maps whichever shape the payload used onto two ordered slots.
// ok is false when either slot key is absent; null placeholders count as present.
func coerceResolutions(f fields) (domain.Resolutions, bool, error) {
	if raw, present := f["conditional_resolutions"]; present && !isNull(raw) {
		return fromContainer(raw)
	}
	return fromKeyedPair(f)
}

func fromContainer(raw json.RawMessage) (domain.Resolutions, bool, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) < 2 {
			return domain.Resolutions{}, false, nil
		}
		if len(list) > 2 {
			return domain.Resolutions{}, false, fmt.Errorf("expected two resolutions, got %d", len(list))
		}
		a, err := slotValue(list[0])
		if err != nil {
			return domain.Resolutions{}, false, err
		}
		b, err := slotValue(list[1])
		if err != nil {
			return domain.Resolutions{}, false, err
		}
		return domain.Resolutions{a, b}, true, nil
	}

	var obj fields
	if err := json.Unmarshal(raw, &obj); err != nil {
		return domain.Resolutions{}, false, fmt.Errorf("conditional_resolutions must be an array or object")
	}
	return fromKeyedPair(obj)
}

func fromKeyedPair(f fields) (domain.Resolutions, bool, error) {
	for _, pair := range resolutionKeyPairs {
		rawA, okA := f[pair[0]]
		rawB, okB := f[pair[1]]
		if !okA && !okB {
			continue
		}
		if !okA || !okB {
			return domain.Resolutions{}, false, nil
		}
		a, err := slotValue(rawA)
		if err != nil {
			return domain.Resolutions{}, false, err
		}
		b, err := slotValue(rawB)
		if err != nil {
			return domain.Resolutions{}, false, err
		}
		return domain.Resolutions{a, b}, true, nil
	}
	return domain.Resolutions{}, false, nil
}

// slotValue accepts a string, null, or an object carrying the answer text.
func slotValue(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	if s, ok := asString(raw); ok {
		if s = strings.TrimSpace(s); s == "" {
			return nil, nil
		}
		return &s, nil
	}
	var obj fields
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("resolution slot must be a string, object or null")
	}
	answer := obj.str("answer", "resolution", "outcome")
	cond := obj.str("condition", "if")
	switch {
	case answer == "" && cond == "":
		return nil, nil
	case answer == "":
		return &cond, nil
	case cond == "":
		return &answer, nil
	}
	s := fmt.Sprintf("If %s: %s", cond, answer)
	return &s, nil
}

// CoerceResolutions applies the accepted resolution shapes to an already decoded object.
// present is false when either slot key is missing.
func CoerceResolutions(obj map[string]json.RawMessage) (res domain.Resolutions, present bool, err error) {
	return coerceResolutions(fields(obj))
}

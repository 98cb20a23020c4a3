// Package changes computes field-level differences between two JSON object snapshots.
//
// Two presentations share one key enumeration: Compute keeps only keys present on
// both sides (the stored summary), Compare unions both sides for the detail view.
package changes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Placeholder is shown in the comparison view for a missing or null value.
const Placeholder = "—"

var ErrInvalidChangeData = errors.New("invalid change data")

type Kind string

const (
	KindAdded     Kind = "added"
	KindRemoved   Kind = "removed"
	KindChanged   Kind = "changed"
	KindUnchanged Kind = "unchanged"
)

type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
	Kind     Kind   `json:"kind"`
	Changed  bool   `json:"changed"`
}

// snapshot is a JSON object that remembers the order its keys were written in.
type snapshot struct {
	keys   []string
	values map[string]json.RawMessage
}

func (s *snapshot) has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func parseSnapshot(data []byte) (*snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("snapshot is not a JSON object")
	}

	s := &snapshot{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if !s.has(key) {
			s.keys = append(s.keys, key)
		}
		s.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after snapshot")
	}
	return s, nil
}

// enumerateKeys yields keys in new-snapshot order, followed by keys only present in old
// unless pairedOnly is set.
func enumerateKeys(oldSnap, newSnap *snapshot, pairedOnly bool) []string {
	keys := make([]string, 0, len(newSnap.keys)+len(oldSnap.keys))
	for _, k := range newSnap.keys {
		if pairedOnly && !oldSnap.has(k) {
			continue
		}
		keys = append(keys, k)
	}
	if pairedOnly {
		return keys
	}
	for _, k := range oldSnap.keys {
		if !newSnap.has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Compute returns the paired keys whose values differ and the rendered summary
// "field: old → new, ...". Absent, null or malformed input yields (nil, nil).
func Compute(oldJSON, newJSON []byte) ([]string, *string) {
	if isAbsent(oldJSON) || isAbsent(newJSON) {
		return nil, nil
	}
	oldSnap, err := parseSnapshot(oldJSON)
	if err != nil {
		return nil, nil
	}
	newSnap, err := parseSnapshot(newJSON)
	if err != nil {
		return nil, nil
	}

	var changed []string
	var parts []string
	for _, key := range enumerateKeys(oldSnap, newSnap, true) {
		oldVal, newVal := oldSnap.values[key], newSnap.values[key]
		if equalValues(oldVal, newVal) {
			continue
		}
		changed = append(changed, key)
		parts = append(parts, fmt.Sprintf("%s: %s → %s", key, summaryValue(oldVal), summaryValue(newVal)))
	}
	if len(parts) == 0 {
		return nil, nil
	}
	summary := strings.Join(parts, ", ")
	return changed, &summary
}

// Compare builds the detail view over every key of both sides. A nil side counts as an
// empty object; unparsable input returns ErrInvalidChangeData.
func Compare(oldJSON, newJSON *string) ([]FieldChange, error) {
	oldSnap, err := snapshotOrEmpty(oldJSON)
	if err != nil {
		return nil, ErrInvalidChangeData
	}
	newSnap, err := snapshotOrEmpty(newJSON)
	if err != nil {
		return nil, ErrInvalidChangeData
	}

	keys := enumerateKeys(oldSnap, newSnap, false)
	rows := make([]FieldChange, 0, len(keys))
	for _, key := range keys {
		oldVal, inOld := oldSnap.values[key]
		newVal, inNew := newSnap.values[key]

		row := FieldChange{
			Field:    key,
			OldValue: displayValue(oldVal),
			NewValue: displayValue(newVal),
		}
		switch {
		case !inOld:
			row.Kind = KindAdded
		case !inNew:
			row.Kind = KindRemoved
		case equalValues(oldVal, newVal):
			row.Kind = KindUnchanged
		default:
			row.Kind = KindChanged
		}
		row.Changed = row.Kind != KindUnchanged
		rows = append(rows, row)
	}
	return rows, nil
}

func snapshotOrEmpty(data *string) (*snapshot, error) {
	if data == nil || isAbsent([]byte(*data)) {
		return &snapshot{values: map[string]json.RawMessage{}}, nil
	}
	return parseSnapshot([]byte(*data))
}

func isAbsent(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func equalValues(a, b json.RawMessage) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an.Cmp(bn) == 0
		}
	}
	return canonical(a) == canonical(b)
}

// asNumber reads a JSON number exactly, so 10 and 10.0 match but large ids never collapse.
func asNumber(raw json.RawMessage) (*big.Rat, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	c := trimmed[0]
	if c != '-' && (c < '0' || c > '9') {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(string(trimmed))
	if !ok {
		return nil, false
	}
	return r, true
}

// canonical re-encodes a value so key order and whitespace do not matter.
func canonical(raw json.RawMessage) string {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return string(out)
}

func summaryValue(raw json.RawMessage) string {
	if isAbsent(raw) {
		return "null"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return compact(raw)
}

func displayValue(raw json.RawMessage) string {
	if raw == nil || isAbsent(raw) {
		return Placeholder
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "Yes"
		}
		return "No"
	}
	return summaryValue(raw)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return buf.String()
}

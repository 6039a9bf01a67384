// Package audit builds tamper-evident audit entries from before/after snapshots.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

// Snapshot is a flattened view of a record: nested objects become dot paths.
// A key mapped to nil is an explicit null; a missing key is absent.
type Snapshot map[string]interface{}

// Take captures v as a Snapshot via its JSON form. A nil v yields an empty snapshot.
func Take(v interface{}) (Snapshot, error) {
	out := Snapshot{}
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("snapshot of %T is not an object", v)
	}
	flatten("", obj, out)
	return out, nil
}

func flatten(prefix string, obj map[string]interface{}, out Snapshot) {
	for key, value := range obj {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok && len(nested) > 0 {
			flatten(path, nested, out)
			continue
		}
		out[path] = value
	}
}

// Diff returns every path present in either snapshot whose value differs.
func Diff(before, after Snapshot) models.AuditDiff {
	diff := models.AuditDiff{}
	for path, oldValue := range before {
		newValue, ok := after[path]
		if !ok {
			diff[path] = models.FieldChange{Old: models.Present(oldValue)}
			continue
		}
		if !reflect.DeepEqual(oldValue, newValue) {
			diff[path] = models.FieldChange{Old: models.Present(oldValue), New: models.Present(newValue)}
		}
	}
	for path, newValue := range after {
		if _, ok := before[path]; !ok {
			diff[path] = models.FieldChange{New: models.Present(newValue)}
		}
	}
	return diff
}

// DiffValues snapshots both values and diffs them.
func DiffValues(before, after interface{}) (models.AuditDiff, error) {
	b, err := Take(before)
	if err != nil {
		return nil, err
	}
	a, err := Take(after)
	if err != nil {
		return nil, err
	}
	return Diff(b, a), nil
}

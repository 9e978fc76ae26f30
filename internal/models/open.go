package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Open records keep the OTRS fields this module understands on the struct and
// every other key in an Extra side-map, which is written back inline.

var knownKeyCache sync.Map // reflect.Type -> map[string]bool

// knownKeys returns the lower-cased json names of t's fields. encoding/json
// matches object keys case-insensitively, so membership must too.
func knownKeys(t reflect.Type) map[string]bool {
	if cached, ok := knownKeyCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[strings.ToLower(name)] = true
	}
	knownKeyCache.Store(t, keys)
	return keys
}

// decodeOpen decodes data into known (a pointer to an alias struct) and
// collects the remaining keys into extra.
func decodeOpen(data []byte, known interface{}, extra *map[string]interface{}) error {
	if err := json.Unmarshal(data, known); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	keys := knownKeys(reflect.TypeOf(known).Elem())
	for k := range raw {
		if keys[strings.ToLower(k)] {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		raw = nil
	}
	*extra = raw
	return nil
}

// encodeOpen encodes known and merges extra into the resulting object.
// Struct fields win over extra keys of the same name.
func encodeOpen(known interface{}, extra map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// mergeInto re-decodes target after overlaying fields on top of its current
// JSON form. Keys that match struct fields land on the struct, the rest in Extra.
func mergeInto(target interface{}, fields map[string]interface{}) error {
	data, err := json.Marshal(target)
	if err != nil {
		return err
	}
	var base map[string]interface{}
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	if base == nil {
		base = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		// drop any case variant of k first so the overlay is the only candidate
		for existing := range base {
			if strings.EqualFold(existing, k) {
				delete(base, existing)
			}
		}
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return err
	}
	reflect.ValueOf(target).Elem().Set(reflect.Zero(reflect.TypeOf(target).Elem()))
	return json.Unmarshal(merged, target)
}

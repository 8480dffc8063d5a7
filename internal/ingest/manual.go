package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"idsguard/internal/failure"
	"idsguard/internal/normalize"
)

// RecordFromForm builds a record from submitted form values. Contract
// features come first in contract order; other fields follow sorted by name.
// Only the first value of a repeated field is used.
func RecordFromForm(c *normalize.Contract, form url.Values) normalize.Record {
	fields := make([]normalize.Field, 0, len(form))
	seen := make(map[string]struct{}, c.Len())
	for _, name := range c.Names() {
		if vals, ok := form[name]; ok && len(vals) > 0 {
			fields = append(fields, normalize.Field{Name: name, Value: vals[0]})
			seen[name] = struct{}{}
		}
	}
	rest := make(map[string]string)
	for name, vals := range form {
		if _, ok := seen[name]; ok || len(vals) == 0 {
			continue
		}
		rest[name] = vals[0]
	}
	fields = append(fields, normalize.RecordFromMap(rest).Fields()...)
	return normalize.NewRecord(fields...)
}

// RecordFromJSON decodes a flat JSON object. Numbers keep their literal
// text; strings are used as is; booleans and null are rendered as text so
// the normalizer rejects them if they land on a feature.
func RecordFromJSON(c *normalize.Contract, data []byte) (normalize.Record, error) {
	const op = "decode json record"
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return normalize.Record{}, &failure.Error{Kind: failure.KindContract, Op: op, Err: err}
	}
	if obj == nil {
		return normalize.Record{}, failure.New(failure.KindContract, op, "expected a JSON object")
	}
	form := make(url.Values, len(obj))
	for k, v := range obj {
		s, err := jsonScalar(v)
		if err != nil {
			return normalize.Record{}, &failure.Error{Kind: failure.KindCoercion, Op: op, Detail: fmt.Sprintf("field %q", k), Err: err}
		}
		form.Set(strings.TrimSpace(k), s)
	}
	return RecordFromForm(c, form), nil
}

func jsonScalar(v any) (string, error) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), nil
	case string:
		return x, nil
	case bool:
		return fmt.Sprint(x), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("nested value of type %T", v)
	}
}

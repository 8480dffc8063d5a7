package normalize

import (
	"sort"
	"strconv"
	"strings"
)

type Field struct {
	Name  string
	Value string
}

// Record is one input row: named raw values in arrival order. Names are
// unique; a repeated name keeps its first position and its last value.
type Record struct {
	fields []Field
	index  map[string]int
}

func NewRecord(fields ...Field) Record {
	r := Record{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		r.set(f.Name, f.Value)
	}
	return r
}

// RecordFromMap builds a record with names in lexical order.
func RecordFromMap(m map[string]string) Record {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		fields = append(fields, Field{Name: n, Value: m[n]})
	}
	return NewRecord(fields...)
}

func (r *Record) set(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

func (r Record) Get(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	return r.fields[i].Value, true
}

func (r Record) Len() int {
	return len(r.fields)
}

func (r Record) Names() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r Record) keySet() map[string]struct{} {
	keys := make(map[string]struct{}, len(r.fields))
	for _, f := range r.fields {
		keys[f.Name] = struct{}{}
	}
	return keys
}

// Details renders the raw values for persistence: numeric values become
// float64, anything else is kept as text.
func (r Record) Details() map[string]any {
	out := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		out[f.Name] = detailValue(f.Value)
	}
	return out
}

func detailValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil && isFinite(v) {
		return v
	}
	return raw
}

package domain

// Record is a row of any model keyed by field name.
type Record map[string]any

// String returns the field as a string, or "" when absent, nil or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// IsNull reports whether the field is absent or nil.
func (r Record) IsNull(field string) bool {
	v, ok := r[field]
	return !ok || v == nil
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

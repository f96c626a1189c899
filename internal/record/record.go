// Package record defines the normalized unit of imported content.
// Parsers produce records; the mapping and reconciliation engines consume
// them without knowing which source or format they came from.
package record

// Record is an ordered collection of named field values. A field holds one
// or more string values; multi-value fields keep their values in the order
// they were added. Field iteration order is insertion order, which keeps
// fingerprints stable for identical content.
type Record struct {
	names  []string
	values map[string][]string
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string][]string)}
}

// Set replaces the values of a field. Setting a field that does not exist
// yet appends it to the iteration order.
func (r *Record) Set(name string, values ...string) {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = append([]string(nil), values...)
}

// Add appends values to a field, creating it if needed.
func (r *Record) Add(name string, values ...string) {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = append(r.values[name], values...)
}

// Values returns the values of a field, or nil if the field is absent.
// The returned slice is the record's own; callers must not modify it.
func (r *Record) Values(name string) []string {
	return r.values[name]
}

// First returns the first value of a field, or "" if the field is absent
// or empty.
func (r *Record) First(name string) string {
	if vs := r.values[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether the field exists, even with zero values.
func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Fields returns the field names in insertion order.
func (r *Record) Fields() []string {
	return r.names
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.names)
}

// IsEmpty reports whether the record has no non-empty value at all.
func (r *Record) IsEmpty() bool {
	for _, name := range r.names {
		for _, v := range r.values[name] {
			if v != "" {
				return false
			}
		}
	}
	return true
}

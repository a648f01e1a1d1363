package onboard

// Answers is the accumulated user-entered data across steps, keyed by
// field name. It is partial at any point before completion; later steps
// may overwrite fields collected earlier.
type Answers map[string]string

// Get returns the value for field, or "" if the field is absent.
func (a Answers) Get(field string) string {
	return a[field]
}

// Has reports whether field is present with a non-empty value.
func (a Answers) Has(field string) bool {
	return a[field] != ""
}

// Merge copies every field from other into a, overwriting existing
// values. A nil other is a no-op.
func (a Answers) Merge(other Answers) {
	for k, v := range other {
		a[k] = v
	}
}

// Clone returns an independent copy of a.
func (a Answers) Clone() Answers {
	cp := make(Answers, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

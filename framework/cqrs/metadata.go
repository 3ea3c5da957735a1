package cqrs

// Metadata is the opaque key-value map carried next to every event
// payload. Commands may carry metadata too, it is merged into the
// metadata of the events they produce.
type Metadata map[string]interface{}

// Merge returns a new Metadata with the keys of other layered on top of
// m. Neither input is modified.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the value for key when it is a string.
func (m Metadata) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

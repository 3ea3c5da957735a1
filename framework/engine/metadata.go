package engine

import "github.com/retro-framework/cqrskit/framework/cqrs"

type propagationMode int

const (
	propagateAll propagationMode = iota
	propagateNone
	propagateKeys
)

// MetadataPropagation decides which command metadata is copied onto the
// events a command produces. The zero value propagates everything.
type MetadataPropagation struct {
	mode propagationMode
	keys []string
}

var (
	PropagateAll  = MetadataPropagation{mode: propagateAll}
	PropagateNone = MetadataPropagation{mode: propagateNone}
)

// PropagateKeys copies only the named keys.
func PropagateKeys(keys ...string) MetadataPropagation {
	return MetadataPropagation{mode: propagateKeys, keys: keys}
}

// Apply returns the part of md to propagate, always a fresh map.
func (p MetadataPropagation) Apply(md cqrs.Metadata) cqrs.Metadata {
	out := cqrs.Metadata{}
	switch p.mode {
	case propagateAll:
		for k, v := range md {
			out[k] = v
		}
	case propagateKeys:
		for _, k := range p.keys {
			if v, ok := md[k]; ok {
				out[k] = v
			}
		}
	}
	return out
}

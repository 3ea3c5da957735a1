package packing

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// JSONPacker is the cqrs.EventDataMarshaller bundled with the framework.
// Payloads are stored as plain JSON, metadata is passed through as is.
//
// Deserialize decodes into the pointer shape handed out by an
// EventManifest and returns the pointed-to value, so handlers always see
// values regardless of what was published.
type JSONPacker struct {
	// DisallowUnknownFields makes payloads carrying fields the shape
	// doesn't declare count as malformed.
	DisallowUnknownFields bool
}

func NewJSONPacker() *JSONPacker {
	return &JSONPacker{}
}

func (jp *JSONPacker) Serialize(env cqrs.Envelope) (cqrs.Wire, error) {
	b, err := json.Marshal(env.Payload)
	if err != nil {
		return cqrs.Wire{}, errors.Wrapf(err, "packing: can't marshal %T as json", env.Payload)
	}
	return cqrs.Wire{Data: b, Metadata: env.Metadata}, nil
}

func (jp *JSONPacker) Deserialize(w cqrs.Wire, shape cqrs.Event) (cqrs.Envelope, error) {
	rv := reflect.ValueOf(shape)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return cqrs.Envelope{}, errors.Errorf("packing: shape must be a non-nil pointer, got %T", shape)
	}
	dec := json.NewDecoder(bytes.NewReader(w.Data))
	if jp.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(shape); err != nil {
		return cqrs.Envelope{}, errors.Wrapf(cqrs.ErrMalformedEvent, "decoding %T: %s", shape, err)
	}
	return cqrs.Envelope{Payload: rv.Elem().Interface(), Metadata: w.Metadata}, nil
}

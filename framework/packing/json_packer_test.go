package packing

import (
	"encoding/json"
	"testing"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	test "github.com/retro-framework/cqrskit/framework/test_helper"
)

func Test_JSONPacker(t *testing.T) {

	t.Run("round trips payload and metadata", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var (
			jp = NewJSONPacker()
			md = cqrs.Metadata{"correlationId": "c-1"}
		)

		// Act
		w, err := jp.Serialize(cqrs.Envelope{Payload: dummyEv{"hello"}, Metadata: md})
		test.H(t).IsNil(err)
		env, err := jp.Deserialize(w, &dummyEv{})

		// Assert
		test.H(t).IsNil(err)
		test.H(t).StringEql(string(w.Data), `{"name":"hello"}`)
		test.H(t).InterfaceEql(env.Payload, dummyEv{"hello"})
		test.H(t).InterfaceEql(env.Metadata, md)
	})

	t.Run("malformed payloads are reported as such", func(t *testing.T) {
		t.Parallel()
		jp := NewJSONPacker()
		_, err := jp.Deserialize(cqrs.Wire{Data: json.RawMessage(`{"name": 12}`)}, &dummyEv{})
		test.H(t).ErrIs(err, cqrs.ErrMalformedEvent)
	})

	t.Run("unknown fields are tolerated unless disallowed", func(t *testing.T) {
		t.Parallel()
		data := json.RawMessage(`{"name":"x","extra":true}`)

		_, err := NewJSONPacker().Deserialize(cqrs.Wire{Data: data}, &dummyEv{})
		test.H(t).IsNil(err)

		strict := &JSONPacker{DisallowUnknownFields: true}
		_, err = strict.Deserialize(cqrs.Wire{Data: data}, &dummyEv{})
		test.H(t).ErrIs(err, cqrs.ErrMalformedEvent)
	})

	t.Run("shape must be a pointer", func(t *testing.T) {
		t.Parallel()
		_, err := NewJSONPacker().Deserialize(cqrs.Wire{Data: json.RawMessage(`{}`)}, dummyEv{})
		test.H(t).NotNil(err)
	})
}

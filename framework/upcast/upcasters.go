package upcast

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// Func adapts two plain functions to cqrs.Upcaster.
type Func struct {
	Match func(cqrs.RawEvent) bool
	Fn    func(cqrs.RawEvent) ([]cqrs.UpcastResult, error)
}

func (f Func) CanUpcast(raw cqrs.RawEvent) bool { return f.Match(raw) }

func (f Func) Upcast(raw cqrs.RawEvent) ([]cqrs.UpcastResult, error) { return f.Fn(raw) }

// ForType matches raw events of exactly the given type.
func ForType(typ string) func(cqrs.RawEvent) bool {
	return func(raw cqrs.RawEvent) bool { return raw.Type == typ }
}

// Rename changes the type of events of type from to to and leaves the
// data alone.
func Rename(from, to string) cqrs.Upcaster {
	return Func{
		Match: ForType(from),
		Fn: func(raw cqrs.RawEvent) ([]cqrs.UpcastResult, error) {
			return []cqrs.UpcastResult{{Type: to, Data: raw.Data}}, nil
		},
	}
}

// Drop removes events of the given type from the stream.
func Drop(typ string) cqrs.Upcaster {
	return Func{
		Match: ForType(typ),
		Fn: func(cqrs.RawEvent) ([]cqrs.UpcastResult, error) {
			return nil, nil
		},
	}
}

// TransformJSON decodes events of type from into a generic JSON object,
// lets fn edit it in place and re-encodes it as type to.
func TransformJSON(from, to string, fn func(map[string]interface{}) error) cqrs.Upcaster {
	return Func{
		Match: ForType(from),
		Fn: func(raw cqrs.RawEvent) ([]cqrs.UpcastResult, error) {
			var obj map[string]interface{}
			if err := json.Unmarshal(raw.Data, &obj); err != nil {
				return nil, errors.Wrapf(err, "can't decode %s data as json object", from)
			}
			if obj == nil {
				obj = map[string]interface{}{}
			}
			if err := fn(obj); err != nil {
				return nil, err
			}
			b, err := json.Marshal(obj)
			if err != nil {
				return nil, errors.Wrapf(err, "can't encode %s data", to)
			}
			return []cqrs.UpcastResult{{Type: to, Data: b}}, nil
		},
	}
}

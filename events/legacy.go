package events

import (
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/upcast"
)

// LegacyTaskCreatedType was written before tasks had descriptions, the
// title was stored as "name".
const LegacyTaskCreatedType = "task.created.v1"

// Upcasters returns the chain turning every stored legacy event into
// its current shape.
func Upcasters() *upcast.Chain {
	return upcast.NewChain(
		upcast.TransformJSON(LegacyTaskCreatedType, TaskCreatedType, func(m map[string]interface{}) error {
			name, ok := m["name"].(string)
			if !ok {
				return errors.Errorf("legacy task has no name: %v", m)
			}
			delete(m, "name")
			m["title"] = name
			return nil
		}),
	)
}

package wehttp

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/goccy/go-json"

	"github.com/weegigs/wee-ledger-go/we"
)

type EntitySerializer[T any] func(entity *we.Entity[T]) (map[string]any, error)

func StateSerializer[T any](entity *we.Entity[T]) (map[string]any, error) {
	serialized, err := json.Marshal(entity.State)
	if err != nil {
		return nil, err
	}

	resource := make(map[string]any)
	if err = json.Unmarshal(serialized, &resource); err != nil {
		return nil, err
	}

	return resource, nil
}

// ResourceEncoder renders an entity's state with its identity and position in the log
// under "$" prefixed keys.
type ResourceEncoder[T any] struct {
	Serializer EntitySerializer[T]
}

func (encoder ResourceEncoder[T]) Encode(w http.ResponseWriter, r *http.Request, e *we.Entity[T]) error {
	serialize := encoder.Serializer
	if serialize == nil {
		serialize = StateSerializer[T]
	}

	resource, err := serialize(e)
	if err != nil {
		http.Error(w, "failed to encode resource", http.StatusInternalServerError)
		return err
	}

	resource["$id"] = e.Aggregate
	resource["$type"] = e.Type
	resource["$version"] = e.Version
	resource["$sequence"] = e.Sequence

	render.JSON(w, r, resource)
	return nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/command"
	"github.com/ha1tch/hotelmig/pkg/models"
)

// ApplyCreate creates a record from a field set. Nested records are created
// first and listed on their owner; inverse references are written once the
// owner has an id. All writes go through s, normally a record transaction.
func ApplyCreate(ctx context.Context, s Store, entity models.EntityType, fs command.FieldSet) (int, error) {
	values := fs.Values()
	nestedIDs, err := createNested(ctx, s, fs, values)
	if err != nil {
		return 0, err
	}

	id, err := s.Create(ctx, string(entity), values)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", entity, err)
	}

	if err := patchInverse(ctx, s, entity, id, fs, nestedIDs); err != nil {
		return 0, err
	}
	return id, nil
}

// ApplyUpdate patches an existing record from a field set. Nested records are
// appended to whatever the field already lists.
func ApplyUpdate(ctx context.Context, s Store, entity models.EntityType, id int, fs command.FieldSet) error {
	values := fs.Values()
	if nested := fs.Nested(); len(nested) > 0 {
		existing, err := s.Get(ctx, string(entity), id)
		if err != nil {
			return fmt.Errorf("update %s %d: %w", entity, id, err)
		}
		for _, n := range nested {
			if _, ok := values[n.Field]; !ok {
				if list, ok := existing[n.Field].([]interface{}); ok {
					values[n.Field] = list
				}
			}
		}
	}

	nestedIDs, err := createNested(ctx, s, fs, values)
	if err != nil {
		return err
	}

	if err := s.Patch(ctx, string(entity), id, values); err != nil {
		return fmt.Errorf("update %s %d: %w", entity, id, err)
	}
	return patchInverse(ctx, s, entity, id, fs, nestedIDs)
}

func createNested(ctx context.Context, s Store, fs command.FieldSet, values map[string]interface{}) ([]int, error) {
	nested := fs.Nested()
	ids := make([]int, 0, len(nested))
	for _, n := range nested {
		id, err := ApplyCreate(ctx, s, n.Entity, n.Fields)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		list, _ := values[n.Field].([]interface{})
		values[n.Field] = append(list, models.Ref(n.Entity, id))
	}
	return ids, nil
}

func patchInverse(ctx context.Context, s Store, entity models.EntityType, id int, fs command.FieldSet, nestedIDs []int) error {
	for i, n := range fs.Nested() {
		if n.Inverse == "" {
			continue
		}
		err := s.Patch(ctx, string(n.Entity), nestedIDs[i], map[string]interface{}{
			n.Inverse: models.Ref(entity, id),
		})
		if err != nil {
			return fmt.Errorf("link %s %d to %s %d: %w", n.Entity, nestedIDs[i], entity, id, err)
		}
	}
	return nil
}

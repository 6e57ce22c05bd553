package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/storage"
)

// Cleanup checks what earlier phases left behind: the reference graph is
// verified and rebuilt when it drifted, identity mappings whose local record
// is gone are reported as warnings and the identity cache is dropped.
func Cleanup(ctx context.Context, mc *Context) (*BatchResult, error) {
	result := &BatchResult{}

	err := mc.Store.VerifyGraphIntegrity(ctx)
	if errors.Is(err, storage.ErrGraphIntegrity) {
		mc.Logger.Warn().Err(err).Msg("rebuilding reference graph")
		if err := mc.Store.RebuildGraph(ctx); err != nil {
			return result, fmt.Errorf("rebuild graph: %w", err)
		}
	} else if err != nil {
		return result, fmt.Errorf("verify graph: %w", err)
	}

	orphans, err := mc.Store.OrphanIdentities(ctx)
	if err != nil {
		return result, fmt.Errorf("orphan identities: %w", err)
	}
	for _, o := range orphans {
		msg := fmt.Sprintf("local %s %d no longer exists", o.EntityType, o.LocalID)
		if err := mc.Log.Warning(ctx, o.EntityType, o.RemoteID, msg); err != nil {
			return result, err
		}
		result.Warnings++
	}

	if err := mc.Identity.Purge(ctx); err != nil {
		return result, fmt.Errorf("purge identity cache: %w", err)
	}
	return result, nil
}

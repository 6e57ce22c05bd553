package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
)

// selectedFolios returns the legacy folios inside the cutover window. Every
// folio-scoped phase selects through it.
func selectedFolios(ctx context.Context, mc *Context) ([]int, error) {
	return mc.Source.Search(ctx, models.Folio.RemoteModel(), remote.Domain{mc.Cutover().Term("date_order")})
}

// malformed holds the legacy rows that did not decode, by id
type malformed map[int]string

// ids returns the malformed row ids in ascending order
func (b malformed) ids() []int {
	ids := make([]int, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// check fails when one of ids did not decode
func (b malformed) check(entity models.EntityType, ids []int) error {
	for _, id := range ids {
		if reason, ok := b[id]; ok {
			return fmt.Errorf("%s %d: %s", entity, id, reason)
		}
	}
	return nil
}

// decodeRows decodes every raw legacy row into T on its own. Rows that do
// not fit T are left out and reported by id; a row whose id cannot be read
// is reported under 0.
func decodeRows[T any](raw []json.RawMessage) ([]T, malformed) {
	rows := make([]T, 0, len(raw))
	var bad malformed
	for _, row := range raw {
		var rec T
		if err := json.Unmarshal(row, &rec); err != nil {
			if bad == nil {
				bad = make(malformed)
			}
			bad[rowID(row)] = fmt.Sprintf("malformed record: %v", err)
			continue
		}
		rows = append(rows, rec)
	}
	return rows, bad
}

func rowID(row json.RawMessage) int {
	var head struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(row, &head); err != nil {
		return 0
	}
	return head.ID
}

// searchRows runs one search_read and decodes the rows one by one
func searchRows[T any](ctx context.Context, src remote.Source, model string, domain remote.Domain, fields []string) ([]T, malformed, error) {
	var raw []json.RawMessage
	if err := src.SearchRead(ctx, model, domain, fields, &raw); err != nil {
		return nil, nil, err
	}
	rows, bad := decodeRows[T](raw)
	return rows, bad, nil
}

// searchRowsIn reads the records of model whose field points into ids. An
// empty id list selects nothing without a remote call.
func searchRowsIn[T any](ctx context.Context, mc *Context, model, field string, ids []int, extra remote.Domain, fields []string) ([]T, malformed, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	domain := remote.Domain{remote.Cond(field, "in", ids)}.And(extra...)
	return searchRows[T](ctx, mc.Source, model, domain, fields)
}

// readRows reads records by id; an empty list reads nothing
func readRows[T any](ctx context.Context, mc *Context, model string, ids []int, fields []string) ([]T, malformed, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	var raw []json.RawMessage
	if err := mc.Source.Read(ctx, model, ids, fields, &raw); err != nil {
		return nil, nil, err
	}
	rows, bad := decodeRows[T](raw)
	return rows, bad, nil
}

// skipMalformed drops reference rows that did not decode. They only feed
// candidate selection, so the records naming them fail in their own phase.
func skipMalformed(mc *Context, model string, bad malformed) {
	for _, id := range bad.ids() {
		mc.Logger.Debug().Str("model", model).Int("remote_id", id).Str("reason", bad[id]).Msg("skipped malformed row")
	}
}

// mapTaxes maps legacy taxes, falling back to the default tax when the
// legacy record was taxed but none of its taxes has a local match.
func mapTaxes(mc *Context, remoteIDs []int) []int {
	ids := mc.Crosswalks.LookupAll(Taxes, remoteIDs)
	if len(ids) == 0 && len(remoteIDs) > 0 {
		if id, ok := mc.Crosswalks.DefaultTax(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

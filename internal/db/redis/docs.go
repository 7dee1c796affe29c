package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/marketsearch/internal/db"
)

// UpsertDoc stores one document as a hash under its key.
func (s *Store) UpsertDoc(ctx context.Context, item db.DocItem) error {
	cmd := s.b().Hset().Key(item.Key).FieldValue()
	for k, v := range item.Fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// UpsertDocs stores multiple documents in a single DoMulti round-trip.
// The returned slice is index-aligned with items; a nil entry means that
// document was stored. Partial failures do not abort the batch.
func (s *Store) UpsertDocs(ctx context.Context, items []db.DocItem) []error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmd := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	errs := make([]error, len(items))
	for i, res := range results {
		if err := res.Error(); err != nil {
			errs[i] = &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", items[i].Key, err)}
		}
	}
	return errs
}

// PatchDoc overwrites a subset of a document's fields, leaving the rest
// intact.
func (s *Store) PatchDoc(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.UpsertDoc(ctx, db.DocItem{Key: key, Fields: fields})
}

// DeleteDoc removes a document key.
func (s *Store) DeleteDoc(ctx context.Context, key string) error {
	cmd := s.b().Del().Key(key).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

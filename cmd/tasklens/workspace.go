package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/astromechza/tasklens-sync/pkg/docid"
	"github.com/astromechza/tasklens-sync/pkg/replica"
	"github.com/astromechza/tasklens-sync/pkg/storage"
)

type workspace struct {
	storePath string
	debug     bool
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tasklens", "store.sqlite3")
	}
	return "tasklens.sqlite3"
}

// open returns the document store and a function that closes it.
func (w *workspace) open(ctx context.Context) (*storage.DocStore, func(), error) {
	if err := os.MkdirAll(filepath.Dir(w.storePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s, err := storage.OpenSQLite(ctx, w.storePath)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewDocStore(s), func() { _ = s.Close() }, nil
}

func (w *workspace) load(ctx context.Context, ds *storage.DocStore, ref string) (*replica.Replica, error) {
	id, err := docid.ParseAny(ref)
	if err != nil {
		return nil, err
	}
	raw, err := ds.LoadDocument(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("document %s is not in %s", id, w.storePath)
		}
		return nil, err
	}
	return replica.Load(id, raw)
}

func (w *workspace) save(ctx context.Context, ds *storage.DocStore, r *replica.Replica) error {
	if err := ds.SaveDocument(ctx, r.ID(), r.Save()); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// mutate loads the document, runs fn and saves the result.
func (w *workspace) mutate(ctx context.Context, ref string, fn func(r *replica.Replica) error) error {
	ds, closer, err := w.open(ctx)
	if err != nil {
		return err
	}
	defer closer()
	r, err := w.load(ctx, ds, ref)
	if err != nil {
		return err
	}
	if err := fn(r); err != nil {
		return err
	}
	return w.save(ctx, ds, r)
}

// read loads the document and runs fn without saving.
func (w *workspace) read(ctx context.Context, ref string, fn func(r *replica.Replica) error) error {
	ds, closer, err := w.open(ctx)
	if err != nil {
		return err
	}
	defer closer()
	r, err := w.load(ctx, ds, ref)
	if err != nil {
		return err
	}
	return fn(r)
}

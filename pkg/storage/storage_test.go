package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/astromechza/tasklens-sync/pkg/docid"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestStoreBasics(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Put(ctx, "a", []byte("one")); err != nil {
				t.Fatal(err)
			}
			if err := s.Put(ctx, "a", []byte("two")); err != nil {
				t.Fatal(err)
			}
			if v, err := s.Load(ctx, "a"); err != nil || string(v) != "two" {
				t.Fatalf("Load = %q, %v", v, err)
			}
			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatalf("second delete: %v", err)
			}
			if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStoreRange(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"b/2", "a/1", "b/1", "b", "c/1", "b\xff"} {
				if err := s.Put(ctx, k, []byte(k)); err != nil {
					t.Fatal(err)
				}
			}
			entries, err := s.Range(ctx, "b/")
			if err != nil {
				t.Fatal(err)
			}
			var keys []string
			for _, e := range entries {
				keys = append(keys, e.Key)
				if string(e.Value) != e.Key {
					t.Fatalf("value mismatch for %q", e.Key)
				}
			}
			if !reflect.DeepEqual(keys, []string{"b/1", "b/2"}) {
				t.Fatalf("unexpected keys %q", keys)
			}
			all, err := s.Range(ctx, "")
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 6 || all[0].Key != "a/1" || all[5].Key != "c/1" {
				t.Fatalf("unexpected full range %v", all)
			}
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	if end, ok := prefixEnd("ab"); !ok || end != "ac" {
		t.Fatalf("prefixEnd(ab) = %q, %v", end, ok)
	}
	if end, ok := prefixEnd("a\xff"); !ok || end != "b" {
		t.Fatalf("prefixEnd(a\\xff) = %q, %v", end, ok)
	}
	if _, ok := prefixEnd("\xff\xff"); ok {
		t.Fatal("expected no bound")
	}
	if _, ok := prefixEnd(""); ok {
		t.Fatal("expected no bound for empty prefix")
	}
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.sqlite")
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", []byte{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if v, err := s.Load(ctx, "k"); err != nil || !reflect.DeepEqual(v, []byte{0, 1, 2}) {
		t.Fatalf("Load = %v, %v", v, err)
	}
}

func TestDocStore(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(NewMemory())
	a, b := docid.New(), docid.New()

	if _, err := ds.LoadDocument(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := ds.LoadCheckpoint(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, id := range []docid.DocumentId{a, b} {
		if err := ds.SaveDocument(ctx, id, id.Bytes()); err != nil {
			t.Fatal(err)
		}
	}
	cp := Checkpoint{ClientID: "device-1", RoomKey: "abc", LastSequence: 42}
	if err := ds.SaveCheckpoint(ctx, a, cp); err != nil {
		t.Fatal(err)
	}
	if got, err := ds.LoadCheckpoint(ctx, a); err != nil || got != cp {
		t.Fatalf("LoadCheckpoint = %+v, %v", got, err)
	}
	if raw, err := ds.LoadDocument(ctx, b); err != nil || !reflect.DeepEqual(raw, b.Bytes()) {
		t.Fatalf("LoadDocument = %v, %v", raw, err)
	}

	ids, err := ds.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 documents, got %v", ids)
	}

	if err := ds.DeleteDocument(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := ds.LoadCheckpoint(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected checkpoint removed, got %v", err)
	}
	if ids, _ := ds.Documents(ctx); len(ids) != 1 || ids[0] != b {
		t.Fatalf("unexpected documents after delete: %v", ids)
	}
}

func TestCheckpointEncodingIsDeterministic(t *testing.T) {
	cp := Checkpoint{ClientID: "x", LastSequence: 7}
	first, err := encMode.Marshal(cp)
	if err != nil {
		t.Fatal(err)
	}
	second, err := encMode.Marshal(cp)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical encodings")
	}
}

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/astromechza/tasklens-sync/pkg/docid"
)

const (
	documentPrefix   = "doc/"
	checkpointPrefix = "checkpoint/"
)

// Checkpoint records how far a device has caught up with a sync room.
type Checkpoint struct {
	ClientID     string `cbor:"client_id"`
	RoomKey      string `cbor:"room_key,omitempty"`
	LastSequence int64  `cbor:"last_sequence"`
}

// DocStore keeps saved documents and their sync checkpoints in any Store.
type DocStore struct {
	store Store
}

func NewDocStore(store Store) *DocStore {
	return &DocStore{store: store}
}

func (d *DocStore) SaveDocument(ctx context.Context, id docid.DocumentId, raw []byte) error {
	return d.store.Put(ctx, documentPrefix+id.String(), raw)
}

// LoadDocument returns ErrNotFound for an unknown document.
func (d *DocStore) LoadDocument(ctx context.Context, id docid.DocumentId) ([]byte, error) {
	return d.store.Load(ctx, documentPrefix+id.String())
}

func (d *DocStore) DeleteDocument(ctx context.Context, id docid.DocumentId) error {
	if err := d.store.Delete(ctx, documentPrefix+id.String()); err != nil {
		return err
	}
	return d.store.Delete(ctx, checkpointPrefix+id.String())
}

func (d *DocStore) SaveCheckpoint(ctx context.Context, id docid.DocumentId, cp Checkpoint) error {
	raw, err := encMode.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return d.store.Put(ctx, checkpointPrefix+id.String(), raw)
}

// LoadCheckpoint returns ErrNotFound when the document has never synced.
func (d *DocStore) LoadCheckpoint(ctx context.Context, id docid.DocumentId) (Checkpoint, error) {
	var cp Checkpoint
	raw, err := d.store.Load(ctx, checkpointPrefix+id.String())
	if err != nil {
		return cp, err
	}
	if err := decMode.Unmarshal(raw, &cp); err != nil {
		return cp, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, nil
}

// Documents lists the ids of every stored document in key order.
func (d *DocStore) Documents(ctx context.Context) ([]docid.DocumentId, error) {
	entries, err := d.store.Range(ctx, documentPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]docid.DocumentId, 0, len(entries))
	for _, e := range entries {
		id, err := docid.Parse(strings.TrimPrefix(e.Key, documentPrefix))
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored key %q: %w", e.Key, err)
		}
		out = append(out, id)
	}
	return out, nil
}

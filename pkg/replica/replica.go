// Package replica owns one local copy of a TaskLens document and the bookkeeping needed to ship its changes to peers.
package replica

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasklens-sync/pkg/bridge"
	"github.com/astromechza/tasklens-sync/pkg/dispatch"
	"github.com/astromechza/tasklens-sync/pkg/docid"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// Replica is safe for concurrent use. Every method takes the lock, so the sync goroutines and the UI can share one instance.
type Replica struct {
	mu  sync.Mutex
	id  docid.DocumentId
	doc *automerge.Doc
	// sent holds the heads at the time of the last Delta.
	sent []automerge.ChangeHash
}

// seedTime is the commit time of the seed change. Together with the seed actor it makes the first change byte-identical on
// every device that creates or joins the same document.
var seedTime = time.Unix(0, 0).UTC()

// seed builds the document's root objects under an actor derived from the id, then hands the document back to a fresh
// random actor. Devices seeding the same id share one set of root objects.
func seed(id docid.DocumentId) (*automerge.Doc, error) {
	doc := automerge.New()
	own := doc.ActorID()
	if err := doc.SetActorID(hex.EncodeToString(id[:])); err != nil {
		return nil, fmt.Errorf("failed to set seed actor: %w", err)
	}
	state := tasklens.NewTunnelState()
	state.Metadata = &tasklens.DocMetadata{AutomergeURL: tasklens.Ptr(id.URL().String())}
	if err := bridge.Reconcile(doc, &state); err != nil {
		return nil, fmt.Errorf("failed to seed document: %w", err)
	}
	if _, err := doc.Commit("init", automerge.CommitOptions{Time: &seedTime, AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}
	if err := doc.SetActorID(own); err != nil {
		return nil, fmt.Errorf("failed to restore actor: %w", err)
	}
	return doc, nil
}

// New creates a document whose metadata records its own url. The seed change is left unsent so the first Delta carries it.
func New(id docid.DocumentId) (*Replica, error) {
	doc, err := seed(id)
	if err != nil {
		return nil, err
	}
	return &Replica{id: id, doc: doc}, nil
}

// Join returns a replica for a document that already exists on another device. It holds the same seed change as the
// origin, so local edits made before the first sync land in the shared root objects. The seed is treated as already sent.
func Join(id docid.DocumentId) (*Replica, error) {
	doc, err := seed(id)
	if err != nil {
		return nil, err
	}
	return &Replica{id: id, doc: doc, sent: doc.Heads()}, nil
}

// Load restores a saved document. Its existing changes are considered already sent.
func Load(id docid.DocumentId, raw []byte) (*Replica, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	return &Replica{id: id, doc: doc, sent: doc.Heads()}, nil
}

func (r *Replica) ID() docid.DocumentId {
	return r.id
}

func (r *Replica) Save() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Save()
}

func (r *Replica) Heads() []automerge.ChangeHash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Heads()
}

// Dispatch applies the action and commits it with the action name as the message.
func (r *Replica) Dispatch(action dispatch.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := dispatch.Dispatch(r.doc, action); err != nil {
		return err
	}
	if _, err := r.doc.Commit(dispatch.Name(action), automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("failed to commit %s: %w", dispatch.Name(action), err)
	}
	return nil
}

// Replace overwrites the document with the given state, healed first, keeping this document's url in the metadata.
func (r *Replica) Replace(state tasklens.TunnelState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := state.Clone()
	tasklens.Heal(&next)
	next.Metadata = &tasklens.DocMetadata{AutomergeURL: tasklens.Ptr(r.id.URL().String())}
	if err := bridge.Reconcile(r.doc, &next); err != nil {
		return err
	}
	if _, err := r.doc.Commit("import", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// State returns the healed snapshot.
func (r *Replica) State() (tasklens.TunnelState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := bridge.Hydrate(r.doc)
	if err != nil {
		return state, err
	}
	tasklens.Heal(&state)
	return state, nil
}

// Delta returns the changes made since the previous call, encoded back to back, or nil when there are none.
func (r *Replica) Delta() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changes, err := r.doc.Changes(r.sent...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	r.sent = r.doc.Heads()
	if len(changes) == 0 {
		return nil, nil
	}
	var buff bytes.Buffer
	for _, c := range changes {
		buff.Write(c.Save())
	}
	return buff.Bytes(), nil
}

// ApplyDelta merges changes or a whole saved document received from a peer.
func (r *Replica) ApplyDelta(raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.doc.LoadIncremental(raw); err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	return nil
}

func (r *Replica) Fork() (*Replica, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.doc.Fork()
	if err != nil {
		return nil, fmt.Errorf("failed to fork: %w", err)
	}
	return &Replica{id: r.id, doc: doc, sent: doc.Heads()}, nil
}

// Merge pulls every change from other. The other replica is only locked while it is forked so two replicas can merge each
// other concurrently.
func (r *Replica) Merge(other *Replica) error {
	snapshot, err := other.Fork()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.doc.Merge(snapshot.doc); err != nil {
		return fmt.Errorf("failed to merge: %w", err)
	}
	return nil
}

package bridge

import (
	"fmt"
	"sort"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// ReconcileError wraps a write that the document rejected.
type ReconcileError struct {
	Path string
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("failed to reconcile %s: %v", e.Path, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Reconcile writes the snapshot into the document. Only values that differ from what the document already holds are written,
// so reconciling an unchanged state produces no operations and concurrent edits to unrelated fields merge cleanly. A nil
// optional field removes the key. Keys this package does not know about are left alone.
func Reconcile(doc *automerge.Doc, state *tasklens.TunnelState) error {
	root := writer{m: doc.RootMap()}
	if err := root.setInt(keyNextTaskID, state.NextTaskID); err != nil {
		return err
	}
	if err := root.setInt(keyNextPlaceID, state.NextPlaceID); err != nil {
		return err
	}

	tasks, err := root.ensureMap(keyTasks)
	if err != nil {
		return err
	}
	taskKeys := make([]string, 0, len(state.Tasks))
	for id := range state.Tasks {
		taskKeys = append(taskKeys, string(id))
	}
	if err := tasks.retainKeys(taskKeys); err != nil {
		return err
	}
	sort.Strings(taskKeys)
	for _, id := range taskKeys {
		obj, err := tasks.ensureMap(id)
		if err != nil {
			return err
		}
		if err := reconcileTask(obj, state.Tasks[tasklens.TaskID(id)]); err != nil {
			return err
		}
	}

	if err := root.setStringList(keyRootTaskIDs, fromIDs(state.RootTaskIDs)); err != nil {
		return err
	}

	places, err := root.ensureMap(keyPlaces)
	if err != nil {
		return err
	}
	placeKeys := make([]string, 0, len(state.Places))
	for id := range state.Places {
		placeKeys = append(placeKeys, string(id))
	}
	if err := places.retainKeys(placeKeys); err != nil {
		return err
	}
	sort.Strings(placeKeys)
	for _, id := range placeKeys {
		obj, err := places.ensureMap(id)
		if err != nil {
			return err
		}
		if err := reconcilePlace(obj, state.Places[tasklens.PlaceID(id)]); err != nil {
			return err
		}
	}

	if state.Metadata == nil {
		return root.remove(keyMetadata)
	}
	md, err := root.ensureMap(keyMetadata)
	if err != nil {
		return err
	}
	return md.setOptString(keyAutomergeURL, state.Metadata.AutomergeURL)
}

func reconcileTask(w writer, t tasklens.PersistedTask) error {
	steps := []func() error{
		func() error { return w.setString(keyStatus, string(t.Status)) },
		func() error { return w.setString(keyID, string(t.ID)) },
		func() error { return w.setString(keyTitle, t.Title) },
		func() error { return w.setString(keyNotes, t.Notes) },
		func() error { return w.setOptString(keyParentID, (*string)(t.ParentID)) },
		func() error { return w.setStringList(keyChildTaskIDs, fromIDs(t.ChildTaskIDs)) },
		func() error { return w.setOptString(keyPlaceID, (*string)(t.PlaceID)) },
		func() error { return w.setFloat(keyImportance, t.Importance) },
		func() error { return w.setOptFloat(keyCreditIncrement, t.CreditIncrement) },
		func() error { return w.setFloat(keyCredits, t.Credits) },
		func() error { return w.setFloat(keyDesiredCredits, t.DesiredCredits) },
		func() error { return w.setInt(keyCreditsTimestamp, t.CreditsTimestamp) },
		func() error { return w.setInt(keyPriorityTimestamp, t.PriorityTimestamp) },
		func() error { return reconcileSchedule(w, t.Schedule) },
		func() error { return reconcileRepeat(w, t.RepeatConfig) },
		func() error { return w.setBool(keyIsSequential, t.IsSequential) },
		func() error { return w.setBool(keyIsAcknowledged, t.IsAcknowledged) },
		func() error { return w.setOptInt(keyLastCompletedAt, t.LastCompletedAt) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// reconcileSchedule edits the schedule object in place so that clearing dueDate does not replace the object.
func reconcileSchedule(w writer, s tasklens.Schedule) error {
	obj, err := w.ensureMap(keySchedule)
	if err != nil {
		return err
	}
	if err := obj.setString(keyScheduleType, string(s.Type)); err != nil {
		return err
	}
	if err := obj.setOptInt(keyDueDate, s.DueDate); err != nil {
		return err
	}
	if err := obj.setInt(keyLeadTime, s.LeadTime); err != nil {
		return err
	}
	return obj.setOptInt(keyLastDone, s.LastDone)
}

func reconcileRepeat(w writer, rc *tasklens.RepeatConfig) error {
	if rc == nil {
		return w.remove(keyRepeatConfig)
	}
	obj, err := w.ensureMap(keyRepeatConfig)
	if err != nil {
		return err
	}
	if err := obj.setString(keyFrequency, string(rc.Frequency)); err != nil {
		return err
	}
	return obj.setInt(keyInterval, rc.Interval)
}

func reconcilePlace(w writer, p tasklens.Place) error {
	if err := w.setString(keyID, string(p.ID)); err != nil {
		return err
	}
	if err := w.setString(keyName, p.Name); err != nil {
		return err
	}
	if err := w.setString(keyHours, p.Hours); err != nil {
		return err
	}
	return w.setStringList(keyIncludedPlaces, fromIDs(p.IncludedPlaces))
}

type writer struct {
	path string
	m    *automerge.Map
}

func (w writer) fail(key string, err error) error {
	return &ReconcileError{Path: join(w.path, key), Err: err}
}

func (w writer) current(key string) (*automerge.Value, error) {
	v, err := w.m.Get(key)
	if err != nil {
		return nil, w.fail(key, err)
	}
	if v == nil || v.IsVoid() {
		return nil, nil
	}
	return v, nil
}

func (w writer) set(key string, value any) error {
	if err := w.m.Set(key, value); err != nil {
		return w.fail(key, err)
	}
	return nil
}

// remove deletes key when present.
func (w writer) remove(key string) error {
	v, err := w.current(key)
	if err != nil || v == nil {
		return err
	}
	if err := w.m.Delete(key); err != nil {
		return w.fail(key, err)
	}
	return nil
}

func (w writer) setString(key, value string) error {
	v, err := w.current(key)
	if err != nil {
		return err
	}
	if v != nil {
		if existing, err := decodeString(key, v); err == nil && existing == value {
			return nil
		}
	}
	return w.set(key, value)
}

func (w writer) setOptString(key string, value *string) error {
	if value == nil {
		return w.remove(key)
	}
	return w.setString(key, *value)
}

func (w writer) setInt(key string, value int64) error {
	v, err := w.current(key)
	if err != nil {
		return err
	}
	if v != nil && v.Kind() != automerge.KindCounter {
		if existing, err := decodeInt(key, v); err == nil && existing == value {
			return nil
		}
	}
	return w.set(key, value)
}

func (w writer) setOptInt(key string, value *int64) error {
	if value == nil {
		return w.remove(key)
	}
	return w.setInt(key, *value)
}

func (w writer) setFloat(key string, value float64) error {
	v, err := w.current(key)
	if err != nil {
		return err
	}
	if v != nil {
		if existing, err := decodeFloat(key, v); err == nil && existing == value {
			return nil
		}
	}
	return w.set(key, value)
}

func (w writer) setOptFloat(key string, value *float64) error {
	if value == nil {
		return w.remove(key)
	}
	return w.setFloat(key, *value)
}

func (w writer) setBool(key string, value bool) error {
	v, err := w.current(key)
	if err != nil {
		return err
	}
	if v != nil && v.Kind() == automerge.KindBool && v.Bool() == value {
		return nil
	}
	return w.set(key, value)
}

// ensureMap returns the map stored at key, replacing any other value with a new map.
func (w writer) ensureMap(key string) (writer, error) {
	v, err := w.current(key)
	if err != nil {
		return writer{}, err
	}
	if v == nil || v.Kind() != automerge.KindMap {
		if err := w.set(key, automerge.NewMap()); err != nil {
			return writer{}, err
		}
		if v, err = w.current(key); err != nil {
			return writer{}, err
		} else if v == nil || v.Kind() != automerge.KindMap {
			return writer{}, w.fail(key, fmt.Errorf("map was not attached"))
		}
	}
	return writer{path: join(w.path, key), m: v.Map()}, nil
}

// retainKeys deletes every key not in keep.
func (w writer) retainKeys(keep []string) error {
	wanted := make(map[string]bool, len(keep))
	for _, k := range keep {
		wanted[k] = true
	}
	existing, err := w.m.Keys()
	if err != nil {
		return &ReconcileError{Path: w.path, Err: err}
	}
	for _, k := range existing {
		if wanted[k] {
			continue
		}
		if err := w.m.Delete(k); err != nil {
			return w.fail(k, err)
		}
	}
	return nil
}

// setStringList rewrites only the span between the common prefix and suffix of the stored and wanted lists.
func (w writer) setStringList(key string, want []string) error {
	path := join(w.path, key)
	v, err := w.current(key)
	if err != nil {
		return err
	}
	if v == nil || v.Kind() != automerge.KindList {
		if err := w.set(key, automerge.NewList()); err != nil {
			return err
		}
		if v, err = w.current(key); err != nil {
			return err
		} else if v == nil || v.Kind() != automerge.KindList {
			return w.fail(key, fmt.Errorf("list was not attached"))
		}
	}
	list := v.List()

	have := make([]string, list.Len())
	for i := range have {
		item, err := list.Get(i)
		if err != nil {
			return &ReconcileError{Path: fmt.Sprintf("%s[%d]", path, i), Err: err}
		}
		// non-string items never match so they get replaced
		if s, err := decodeString(path, item); err == nil {
			have[i] = s
		} else {
			have[i] = "\x00"
		}
	}

	prefix := 0
	for prefix < len(have) && prefix < len(want) && have[prefix] == want[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(have)-prefix && suffix < len(want)-prefix && have[len(have)-1-suffix] == want[len(want)-1-suffix] {
		suffix++
	}

	for i := len(have) - suffix - 1; i >= prefix; i-- {
		if err := list.Delete(i); err != nil {
			return &ReconcileError{Path: fmt.Sprintf("%s[%d]", path, i), Err: err}
		}
	}
	middle := want[prefix : len(want)-suffix]
	if len(middle) > 0 {
		values := make([]any, len(middle))
		for i, s := range middle {
			values[i] = s
		}
		if prefix == list.Len() {
			err = list.Append(values...)
		} else {
			err = list.Insert(prefix, values...)
		}
		if err != nil {
			return &ReconcileError{Path: fmt.Sprintf("%s[%d]", path, prefix), Err: err}
		}
	}
	return nil
}

func fromIDs[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

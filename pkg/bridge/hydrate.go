package bridge

import (
	"fmt"
	"math"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// HydrateError means the document does not have the shape this package writes. It is treated as corruption.
type HydrateError struct {
	Path     string
	Expected string
	Found    string
}

func (e *HydrateError) Error() string {
	return fmt.Sprintf("failed to hydrate %s: expected %s, found %s", e.Path, e.Expected, e.Found)
}

// Hydrate reads the document root into a typed snapshot. A document with an empty root hydrates to a fresh state so that a
// replica can start blank and wait for its first sync.
func Hydrate(doc *automerge.Doc) (tasklens.TunnelState, error) {
	root := object{m: doc.RootMap()}
	if root.m.Len() == 0 {
		return tasklens.NewTunnelState(), nil
	}

	state := tasklens.TunnelState{
		Tasks:  map[tasklens.TaskID]tasklens.PersistedTask{},
		Places: map[tasklens.PlaceID]tasklens.Place{},
	}
	var err error
	if state.NextTaskID, err = root.integer(keyNextTaskID); err != nil {
		return state, err
	}
	if state.NextPlaceID, err = root.integer(keyNextPlaceID); err != nil {
		return state, err
	}

	tasks, err := root.child(keyTasks)
	if err != nil {
		return state, err
	}
	if err := tasks.each(func(key string, task object) error {
		t, err := hydrateTask(task)
		if err != nil {
			return err
		}
		state.Tasks[tasklens.TaskID(key)] = t
		return nil
	}); err != nil {
		return state, err
	}

	roots, err := root.stringList(keyRootTaskIDs, true)
	if err != nil {
		return state, err
	}
	state.RootTaskIDs = toIDs[tasklens.TaskID](roots)

	places, err := root.child(keyPlaces)
	if err != nil {
		return state, err
	}
	if err := places.each(func(key string, place object) error {
		p, err := hydratePlace(place)
		if err != nil {
			return err
		}
		state.Places[tasklens.PlaceID(key)] = p
		return nil
	}); err != nil {
		return state, err
	}

	md, ok, err := root.optChild(keyMetadata)
	if err != nil {
		return state, err
	} else if ok {
		url, err := md.optStr(keyAutomergeURL)
		if err != nil {
			return state, err
		}
		state.Metadata = &tasklens.DocMetadata{AutomergeURL: url}
	}
	return state, nil
}

func hydrateTask(o object) (tasklens.PersistedTask, error) {
	var t tasklens.PersistedTask
	var err error

	status, err := o.str(keyStatus)
	if err != nil {
		return t, err
	}
	if t.Status, err = tasklens.ParseTaskStatus(status); err != nil {
		return t, &HydrateError{Path: join(o.path, keyStatus), Expected: "task status", Found: status}
	}
	id, err := o.str(keyID)
	if err != nil {
		return t, err
	}
	t.ID = tasklens.TaskID(id)
	if t.Title, err = o.str(keyTitle); err != nil {
		return t, err
	}
	notes, err := o.optStr(keyNotes)
	if err != nil {
		return t, err
	} else if notes != nil {
		t.Notes = *notes
	}
	parent, err := o.optStr(keyParentID)
	if err != nil {
		return t, err
	} else if parent != nil {
		t.ParentID = tasklens.Ptr(tasklens.TaskID(*parent))
	}
	children, err := o.stringList(keyChildTaskIDs, false)
	if err != nil {
		return t, err
	}
	t.ChildTaskIDs = toIDs[tasklens.TaskID](children)
	place, err := o.optStr(keyPlaceID)
	if err != nil {
		return t, err
	} else if place != nil {
		t.PlaceID = tasklens.Ptr(tasklens.PlaceID(*place))
	}
	if t.Importance, err = o.number(keyImportance); err != nil {
		return t, err
	}
	if t.CreditIncrement, err = o.optNumber(keyCreditIncrement); err != nil {
		return t, err
	}
	if t.Credits, err = o.number(keyCredits); err != nil {
		return t, err
	}
	if t.DesiredCredits, err = o.number(keyDesiredCredits); err != nil {
		return t, err
	}
	if t.CreditsTimestamp, err = o.integer(keyCreditsTimestamp); err != nil {
		return t, err
	}
	if t.PriorityTimestamp, err = o.integer(keyPriorityTimestamp); err != nil {
		return t, err
	}

	schedule, err := o.child(keySchedule)
	if err != nil {
		return t, err
	}
	scheduleType, err := schedule.str(keyScheduleType)
	if err != nil {
		return t, err
	}
	if t.Schedule.Type, err = tasklens.ParseScheduleType(scheduleType); err != nil {
		return t, &HydrateError{Path: join(schedule.path, keyScheduleType), Expected: "schedule type", Found: scheduleType}
	}
	if t.Schedule.DueDate, err = schedule.optInteger(keyDueDate); err != nil {
		return t, err
	}
	if t.Schedule.LeadTime, err = schedule.integer(keyLeadTime); err != nil {
		return t, err
	}
	if t.Schedule.LastDone, err = schedule.optInteger(keyLastDone); err != nil {
		return t, err
	}

	repeat, ok, err := o.optChild(keyRepeatConfig)
	if err != nil {
		return t, err
	} else if ok {
		freq, err := repeat.str(keyFrequency)
		if err != nil {
			return t, err
		}
		rc := &tasklens.RepeatConfig{}
		if rc.Frequency, err = tasklens.ParseFrequency(freq); err != nil {
			return t, &HydrateError{Path: join(repeat.path, keyFrequency), Expected: "frequency", Found: freq}
		}
		if rc.Interval, err = repeat.integer(keyInterval); err != nil {
			return t, err
		}
		t.RepeatConfig = rc
	}

	if t.IsSequential, err = o.boolOr(keyIsSequential, false); err != nil {
		return t, err
	}
	if t.IsAcknowledged, err = o.boolOr(keyIsAcknowledged, false); err != nil {
		return t, err
	}
	if t.LastCompletedAt, err = o.optInteger(keyLastCompletedAt); err != nil {
		return t, err
	}
	return t, nil
}

func hydratePlace(o object) (tasklens.Place, error) {
	var p tasklens.Place
	id, err := o.str(keyID)
	if err != nil {
		return p, err
	}
	p.ID = tasklens.PlaceID(id)
	if p.Name, err = o.str(keyName); err != nil {
		return p, err
	}
	if p.Hours, err = o.str(keyHours); err != nil {
		return p, err
	}
	included, err := o.stringList(keyIncludedPlaces, true)
	if err != nil {
		return p, err
	}
	p.IncludedPlaces = toIDs[tasklens.PlaceID](included)
	return p, nil
}

// object is a map in the document plus the dotted path used in error messages.
type object struct {
	path string
	m    *automerge.Map
}

// get returns nil for an absent key.
func (o object) get(key string) (*automerge.Value, error) {
	v, err := o.m.Get(key)
	if err != nil {
		return nil, &HydrateError{Path: join(o.path, key), Expected: "readable value", Found: err.Error()}
	}
	if v == nil || v.IsVoid() {
		return nil, nil
	}
	return v, nil
}

func (o object) missing(key, expected string) error {
	return &HydrateError{Path: join(o.path, key), Expected: expected, Found: "nothing"}
}

func (o object) str(key string) (string, error) {
	v, err := o.get(key)
	if err != nil {
		return "", err
	} else if v == nil {
		return "", o.missing(key, "string")
	}
	return decodeString(join(o.path, key), v)
}

func (o object) optStr(key string) (*string, error) {
	v, err := o.get(key)
	if err != nil || v == nil || v.IsNull() {
		return nil, err
	}
	s, err := decodeString(join(o.path, key), v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (o object) integer(key string) (int64, error) {
	v, err := o.get(key)
	if err != nil {
		return 0, err
	} else if v == nil {
		return 0, o.missing(key, "integer")
	}
	return decodeInt(join(o.path, key), v)
}

func (o object) optInteger(key string) (*int64, error) {
	v, err := o.get(key)
	if err != nil || v == nil || v.IsNull() {
		return nil, err
	}
	i, err := decodeInt(join(o.path, key), v)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (o object) number(key string) (float64, error) {
	v, err := o.get(key)
	if err != nil {
		return 0, err
	} else if v == nil {
		return 0, o.missing(key, "number")
	}
	return decodeFloat(join(o.path, key), v)
}

func (o object) optNumber(key string) (*float64, error) {
	v, err := o.get(key)
	if err != nil || v == nil || v.IsNull() {
		return nil, err
	}
	f, err := decodeFloat(join(o.path, key), v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (o object) boolOr(key string, fallback bool) (bool, error) {
	v, err := o.get(key)
	if err != nil {
		return false, err
	} else if v == nil || v.IsNull() {
		return fallback, nil
	}
	if v.Kind() != automerge.KindBool {
		return false, &HydrateError{Path: join(o.path, key), Expected: "bool", Found: kindName(v.Kind())}
	}
	return v.Bool(), nil
}

func (o object) child(key string) (object, error) {
	out, ok, err := o.optChild(key)
	if err != nil {
		return out, err
	} else if !ok {
		return out, o.missing(key, "map")
	}
	return out, nil
}

func (o object) optChild(key string) (object, bool, error) {
	v, err := o.get(key)
	if err != nil || v == nil || v.IsNull() {
		return object{}, false, err
	}
	if v.Kind() != automerge.KindMap {
		return object{}, false, &HydrateError{Path: join(o.path, key), Expected: "map", Found: kindName(v.Kind())}
	}
	return object{path: join(o.path, key), m: v.Map()}, true, nil
}

// each visits the entries of a map of maps.
func (o object) each(fn func(key string, value object) error) error {
	keys, err := o.m.Keys()
	if err != nil {
		return &HydrateError{Path: o.path, Expected: "map keys", Found: err.Error()}
	}
	for _, k := range keys {
		child, err := o.child(k)
		if err != nil {
			return err
		}
		if err := fn(k, child); err != nil {
			return err
		}
	}
	return nil
}

// stringList reads a list of strings. When required is false an absent list reads as empty.
func (o object) stringList(key string, required bool) ([]string, error) {
	path := join(o.path, key)
	v, err := o.get(key)
	if err != nil {
		return nil, err
	} else if v == nil || v.IsNull() {
		if required {
			return nil, o.missing(key, "list")
		}
		return []string{}, nil
	}
	if v.Kind() != automerge.KindList {
		return nil, &HydrateError{Path: path, Expected: "list", Found: kindName(v.Kind())}
	}
	list := v.List()
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		item, err := list.Get(i)
		if err != nil {
			return nil, &HydrateError{Path: fmt.Sprintf("%s[%d]", path, i), Expected: "readable value", Found: err.Error()}
		}
		s, err := decodeString(fmt.Sprintf("%s[%d]", path, i), item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeString(path string, v *automerge.Value) (string, error) {
	switch v.Kind() {
	case automerge.KindStr:
		return v.Str(), nil
	case automerge.KindText:
		s, err := v.Text().Get()
		if err != nil {
			return "", &HydrateError{Path: path, Expected: "string", Found: err.Error()}
		}
		return s, nil
	}
	return "", &HydrateError{Path: path, Expected: "string", Found: kindName(v.Kind())}
}

// decodeInt keeps integers exact. Timestamps above 2^53 would lose precision through a float, so floats are only accepted
// when they are integral and in range.
func decodeInt(path string, v *automerge.Value) (int64, error) {
	switch v.Kind() {
	case automerge.KindInt64:
		return v.Int64(), nil
	case automerge.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u), nil
		}
		return 0, &HydrateError{Path: path, Expected: "integer", Found: "uint64 out of range"}
	case automerge.KindFloat64:
		f := v.Float64()
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), nil
		}
		return 0, &HydrateError{Path: path, Expected: "integer", Found: fmt.Sprintf("float %v", f)}
	case automerge.KindCounter:
		c, err := v.Counter().Get()
		if err != nil {
			return 0, &HydrateError{Path: path, Expected: "integer", Found: err.Error()}
		}
		return c, nil
	}
	return 0, &HydrateError{Path: path, Expected: "integer", Found: kindName(v.Kind())}
}

func decodeFloat(path string, v *automerge.Value) (float64, error) {
	switch v.Kind() {
	case automerge.KindFloat64:
		return v.Float64(), nil
	case automerge.KindInt64:
		return float64(v.Int64()), nil
	case automerge.KindUint64:
		return float64(v.Uint64()), nil
	}
	return 0, &HydrateError{Path: path, Expected: "number", Found: kindName(v.Kind())}
}

func kindName(k automerge.Kind) string {
	switch k {
	case automerge.KindVoid:
		return "nothing"
	case automerge.KindNull:
		return "null"
	case automerge.KindBool:
		return "bool"
	case automerge.KindStr:
		return "string"
	case automerge.KindText:
		return "text"
	case automerge.KindBytes:
		return "bytes"
	case automerge.KindInt64, automerge.KindUint64, automerge.KindCounter:
		return "integer"
	case automerge.KindFloat64:
		return "float"
	case automerge.KindTime:
		return "timestamp"
	case automerge.KindMap:
		return "map"
	case automerge.KindList:
		return "list"
	}
	return fmt.Sprintf("kind %d", k)
}

func toIDs[T ~string](in []string) []T {
	out := make([]T, len(in))
	for i, s := range in {
		out[i] = T(s)
	}
	return out
}

package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// Export renders the snapshot in the camelCase JSON backup format. Optional fields are omitted when unset and empty lists are
// written as [] to match what the document holds.
func Export(state *tasklens.TunnelState) ([]byte, error) {
	out, err := json.Marshal(state.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return out, nil
}

// Import parses a backup produced by Export or by an older client.
func Import(raw []byte) (tasklens.TunnelState, error) {
	var state tasklens.TunnelState
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	for id, t := range state.Tasks {
		if _, err := tasklens.ParseTaskStatus(string(t.Status)); err != nil {
			return state, fmt.Errorf("task %s: %w", id, err)
		}
		if _, err := tasklens.ParseScheduleType(string(t.Schedule.Type)); err != nil {
			return state, fmt.Errorf("task %s: %w", id, err)
		}
	}
	// Clone fills in nil maps and slices.
	return state.Clone(), nil
}

// Normalize decodes arbitrary JSON into generic values where every number is a float64, for comparing documents written
// through different paths.
func Normalize(raw []byte) (any, error) {
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize: %w", err)
	}
	return out, nil
}

// DocumentJSON renders the whole document tree as JSON without going through the typed snapshot.
func DocumentJSON(doc *automerge.Doc) ([]byte, error) {
	tree, err := mapValue("", doc.RootMap())
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return out, nil
}

func mapValue(path string, m *automerge.Map) (map[string]any, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, &HydrateError{Path: path, Expected: "map keys", Found: err.Error()}
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := m.Get(k)
		if err != nil {
			return nil, &HydrateError{Path: join(path, k), Expected: "readable value", Found: err.Error()}
		}
		if out[k], err = genericValue(join(path, k), v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func genericValue(path string, v *automerge.Value) (any, error) {
	switch v.Kind() {
	case automerge.KindVoid, automerge.KindNull:
		return nil, nil
	case automerge.KindMap:
		return mapValue(path, v.Map())
	case automerge.KindList:
		list := v.List()
		out := make([]any, list.Len())
		for i := range out {
			item, err := list.Get(i)
			if err != nil {
				return nil, &HydrateError{Path: fmt.Sprintf("%s[%d]", path, i), Expected: "readable value", Found: err.Error()}
			}
			if out[i], err = genericValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return nil, err
			}
		}
		return out, nil
	case automerge.KindStr, automerge.KindText:
		return decodeString(path, v)
	case automerge.KindInt64, automerge.KindUint64, automerge.KindCounter:
		return decodeInt(path, v)
	case automerge.KindFloat64:
		return v.Float64(), nil
	case automerge.KindBool:
		return v.Bool(), nil
	case automerge.KindBytes:
		return v.Bytes(), nil
	case automerge.KindTime:
		return v.Time(), nil
	}
	return nil, &HydrateError{Path: path, Expected: "known value", Found: kindName(v.Kind())}
}

package tasklens

import (
	"errors"
	"fmt"
	"sort"
)

// Heal repairs the structural damage that concurrent edits can leave behind once two replicas merge. The parentId of each task
// is authoritative: a parent that no longer exists makes the task a root, a cycle is broken by promoting its smallest id to the
// root, and the child and root lists are rebuilt from the parent links. Existing list order is preserved, duplicates and
// unknown ids are dropped and missing members are appended in id order. The result depends only on the input so every replica
// heals a merged document the same way. It returns the number of repairs made.
func Heal(state *TunnelState) int {
	repairs := 0
	ids := sortedTaskIDs(state)

	for _, id := range ids {
		task := state.Tasks[id]
		if task.ID != id {
			task.ID = id
			state.Tasks[id] = task
			repairs++
		}
		if task.ParentID == nil {
			continue
		}
		if _, ok := state.Tasks[*task.ParentID]; !ok || *task.ParentID == id {
			task.ParentID = nil
			state.Tasks[id] = task
			repairs++
		}
	}

	repairs += breakCycles(state, ids)

	children := make(map[TaskID][]TaskID, len(ids))
	roots := make([]TaskID, 0)
	for _, id := range ids {
		if p := state.Tasks[id].ParentID; p != nil {
			children[*p] = append(children[*p], id)
		} else {
			roots = append(roots, id)
		}
	}
	for _, id := range ids {
		task := state.Tasks[id]
		rebuilt, changed := rebuildList(task.ChildTaskIDs, children[id])
		if changed {
			task.ChildTaskIDs = rebuilt
			state.Tasks[id] = task
			repairs++
		}
	}
	if rebuilt, changed := rebuildList(state.RootTaskIDs, roots); changed {
		state.RootTaskIDs = rebuilt
		repairs++
	}
	return repairs
}

// breakCycles follows parent links from every task. Each task has at most one parent so cycles are disjoint and the smallest
// member of each is a stable choice.
func breakCycles(state *TunnelState, ids []TaskID) int {
	const (
		unseen = iota
		onPath
		done
	)
	mark := make(map[TaskID]int, len(ids))
	repairs := 0
	for _, start := range ids {
		if mark[start] != unseen {
			continue
		}
		path := make([]TaskID, 0)
		current := start
		for {
			if mark[current] == done {
				break
			}
			if mark[current] == onPath {
				cycle := path[indexOf(path, current):]
				smallest := cycle[0]
				for _, c := range cycle[1:] {
					if c < smallest {
						smallest = c
					}
				}
				task := state.Tasks[smallest]
				task.ParentID = nil
				state.Tasks[smallest] = task
				repairs++
				break
			}
			mark[current] = onPath
			path = append(path, current)
			parent := state.Tasks[current].ParentID
			if parent == nil {
				break
			}
			current = *parent
		}
		for _, p := range path {
			mark[p] = done
		}
	}
	return repairs
}

func rebuildList(existing []TaskID, members []TaskID) ([]TaskID, bool) {
	want := make(map[TaskID]bool, len(members))
	for _, m := range members {
		want[m] = true
	}
	out := make([]TaskID, 0, len(members))
	seen := make(map[TaskID]bool, len(members))
	for _, id := range existing {
		if want[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	// members arrive sorted
	for _, m := range members {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) != len(existing) {
		return out, true
	}
	for i := range out {
		if out[i] != existing[i] {
			return out, true
		}
	}
	return out, false
}

// CheckInvariants verifies that the tasks form a forest whose child and root lists match the parent links exactly.
func CheckInvariants(state *TunnelState) error {
	var errs []error
	ids := sortedTaskIDs(state)
	parentOf := make(map[TaskID]*TaskID, len(ids))
	for _, id := range ids {
		task := state.Tasks[id]
		if task.ID != id {
			errs = append(errs, fmt.Errorf("task stored under %q has id %q", id, task.ID))
		}
		parentOf[id] = task.ParentID
		if task.ParentID != nil {
			if _, ok := state.Tasks[*task.ParentID]; !ok {
				errs = append(errs, fmt.Errorf("task %q has missing parent %q", id, *task.ParentID))
			}
		}
	}
	for _, id := range ids {
		steps := 0
		for p := parentOf[id]; p != nil; p = parentOf[*p] {
			steps++
			if *p == id || steps > len(ids) {
				errs = append(errs, fmt.Errorf("task %q is its own ancestor", id))
				break
			}
		}
	}
	for _, id := range ids {
		task := state.Tasks[id]
		seen := map[TaskID]bool{}
		for _, c := range task.ChildTaskIDs {
			if seen[c] {
				errs = append(errs, fmt.Errorf("task %q lists child %q twice", id, c))
			}
			seen[c] = true
			child, ok := state.Tasks[c]
			if !ok {
				errs = append(errs, fmt.Errorf("task %q lists missing child %q", id, c))
			} else if child.ParentID == nil || *child.ParentID != id {
				errs = append(errs, fmt.Errorf("task %q lists child %q which has another parent", id, c))
			}
		}
		if p := task.ParentID; p != nil {
			if parent, ok := state.Tasks[*p]; ok && indexOf(parent.ChildTaskIDs, id) < 0 {
				errs = append(errs, fmt.Errorf("task %q is missing from the children of %q", id, *p))
			}
		}
	}
	seenRoots := map[TaskID]bool{}
	for _, r := range state.RootTaskIDs {
		if seenRoots[r] {
			errs = append(errs, fmt.Errorf("root %q listed twice", r))
		}
		seenRoots[r] = true
		task, ok := state.Tasks[r]
		if !ok {
			errs = append(errs, fmt.Errorf("root list contains missing task %q", r))
		} else if task.ParentID != nil {
			errs = append(errs, fmt.Errorf("root list contains %q which has parent %q", r, *task.ParentID))
		}
	}
	for _, id := range ids {
		if state.Tasks[id].ParentID == nil && !seenRoots[id] {
			errs = append(errs, fmt.Errorf("parentless task %q is missing from the root list", id))
		}
	}
	return errors.Join(errs...)
}

func sortedTaskIDs(state *TunnelState) []TaskID {
	ids := make([]TaskID, 0, len(state.Tasks))
	for id := range state.Tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func indexOf(ids []TaskID, id TaskID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

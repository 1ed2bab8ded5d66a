package tasklens

// DescendantIDs returns every task below id, breadth first. The walk follows child lists and never visits a task twice, so a
// corrupted document with a cycle still terminates.
func DescendantIDs(state *TunnelState, id TaskID) []TaskID {
	visited := map[TaskID]bool{id: true}
	out := make([]TaskID, 0)
	queue := []TaskID{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		task, ok := state.Tasks[current]
		if !ok {
			continue
		}
		for _, child := range task.ChildTaskIDs {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// AncestorIDs walks parentId links from id towards the root, nearest first. It stops at a missing parent or when the chain
// revisits a task.
func AncestorIDs(state *TunnelState, id TaskID) []TaskID {
	visited := map[TaskID]bool{id: true}
	out := make([]TaskID, 0)
	current, ok := state.Tasks[id]
	for ok && current.ParentID != nil {
		parent := *current.ParentID
		if visited[parent] {
			break
		}
		visited[parent] = true
		out = append(out, parent)
		current, ok = state.Tasks[parent]
	}
	return out
}

// WouldCycle reports whether moving id beneath newParent would make the task its own ancestor.
func WouldCycle(state *TunnelState, id TaskID, newParent *TaskID) bool {
	if newParent == nil {
		return false
	}
	if *newParent == id {
		return true
	}
	for _, ancestor := range AncestorIDs(state, *newParent) {
		if ancestor == id {
			return true
		}
	}
	return false
}

// Detach removes id from its parent's child list, or from the root list when it has no parent.
func Detach(state *TunnelState, id TaskID) {
	task, ok := state.Tasks[id]
	if !ok {
		return
	}
	if task.ParentID == nil {
		state.RootTaskIDs = removeID(state.RootTaskIDs, id)
		return
	}
	if parent, ok := state.Tasks[*task.ParentID]; ok {
		parent.ChildTaskIDs = removeID(parent.ChildTaskIDs, id)
		state.Tasks[parent.ID] = parent
	}
}

// Attach sets parentId and appends id to the matching child or root list.
func Attach(state *TunnelState, id TaskID, parentID *TaskID) {
	task, ok := state.Tasks[id]
	if !ok {
		return
	}
	task.ParentID = clonePtr(parentID)
	state.Tasks[id] = task
	if parentID == nil {
		state.RootTaskIDs = append(state.RootTaskIDs, id)
		return
	}
	if parent, ok := state.Tasks[*parentID]; ok {
		parent.ChildTaskIDs = append(parent.ChildTaskIDs, id)
		state.Tasks[parent.ID] = parent
	}
}

func removeID(ids []TaskID, id TaskID) []TaskID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Package dispatch is the only sanctioned way to mutate a TaskLens document. Every action is validated against a healed
// snapshot before anything is written, and the snapshot is then reconciled back so only changed fields produce operations.
package dispatch

import (
	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasklens-sync/pkg/bridge"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// Dispatch applies one action to the document. The caller owns the document and must not dispatch concurrently, and is
// responsible for committing. An empty document gets fresh root objects, so a document shared between devices must be
// seeded the same way on each of them first.
func Dispatch(doc *automerge.Doc, action Action) error {
	state, err := bridge.Hydrate(doc)
	if err != nil {
		return &DispatchError{Kind: KindCorrupt, Msg: "failed to hydrate document", Err: err}
	}
	tasklens.Heal(&state)
	if err := Apply(&state, action); err != nil {
		return err
	}
	if err := bridge.Reconcile(doc, &state); err != nil {
		return &DispatchError{Kind: KindReconcile, Msg: "failed to reconcile " + Name(action), Err: err}
	}
	return nil
}

// Apply validates and applies the action to an in-memory snapshot. The snapshot is unchanged when an error is returned.
func Apply(state *tasklens.TunnelState, action Action) error {
	switch a := action.(type) {
	case CreateTask:
		return createTask(state, a)
	case UpdateTask:
		return updateTask(state, a)
	case DeleteTask:
		return deleteTask(state, a)
	case CompleteTask:
		if _, ok := state.Tasks[a.ID]; !ok {
			return notFound("task %q does not exist", a.ID)
		}
		tasklens.CompleteTask(state, a.ID, a.Now)
		return nil
	case MoveTask:
		return moveTask(state, a)
	case RefreshLifecycle:
		tasklens.AcknowledgeCompletedTasks(state)
		tasklens.WakeUpRoutineTasks(state, a.Now)
		return nil
	case SetBalanceDistribution:
		for id, credits := range a.Distribution {
			if err := validateFinite("desired credits for task "+string(id), &credits); err != nil {
				return err
			}
		}
		for id, credits := range a.Distribution {
			if task, ok := state.Tasks[id]; ok {
				task.DesiredCredits = credits
				state.Tasks[id] = task
			}
		}
		return nil
	case CreatePlace:
		return createPlace(state, a)
	case UpdatePlace:
		return updatePlace(state, a)
	case DeletePlace:
		return deletePlace(state, a)
	case nil:
		return invalid("no action given")
	}
	return invalid("unsupported action %T", action)
}

func createTask(state *tasklens.TunnelState, a CreateTask) error {
	if a.ID == "" {
		return invalid("task id must not be empty")
	}
	if err := validateTitle(a.Title); err != nil {
		return err
	}
	if _, ok := state.Tasks[a.ID]; ok {
		return exists("task %q already exists", a.ID)
	}
	var parent *tasklens.PersistedTask
	if a.ParentID != nil {
		p, ok := state.Tasks[*a.ParentID]
		if !ok {
			return notFound("parent task %q does not exist", *a.ParentID)
		}
		parent = &p
	}
	task := tasklens.NewTask(a.ID, a.Title, parent)
	state.Tasks[a.ID] = task
	tasklens.Attach(state, a.ID, task.ParentID)
	state.NextTaskID++
	return nil
}

func updateTask(state *tasklens.TunnelState, a UpdateTask) error {
	task, ok := state.Tasks[a.ID]
	if !ok {
		return notFound("task %q does not exist", a.ID)
	}
	u := a.Updates
	if u.Title != nil {
		if err := validateTitle(*u.Title); err != nil {
			return err
		}
		task.Title = *u.Title
	}
	if u.Notes != nil {
		if err := validateNotes(*u.Notes); err != nil {
			return err
		}
		task.Notes = *u.Notes
	}
	if u.Status != nil {
		if _, err := tasklens.ParseTaskStatus(string(*u.Status)); err != nil {
			return invalid("%v", err)
		}
		task.Status = *u.Status
	}
	if u.ScheduleType != nil {
		if _, err := tasklens.ParseScheduleType(string(*u.ScheduleType)); err != nil {
			return invalid("%v", err)
		}
		task.Schedule.Type = *u.ScheduleType
	}
	if err := validatePlaceRef(state, u.PlaceID.Value()); err != nil {
		return err
	}
	if err := validateRepeat(u.RepeatConfig.Value()); err != nil {
		return err
	}
	for field, v := range map[string]*float64{
		"credits":          u.Credits,
		"desired credits":  u.DesiredCredits,
		"credit increment": u.CreditIncrement.Value(),
		"importance":       u.Importance,
	} {
		if err := validateFinite(field, v); err != nil {
			return err
		}
	}

	u.PlaceID.apply(&task.PlaceID)
	u.CreditIncrement.apply(&task.CreditIncrement)
	u.RepeatConfig.apply(&task.RepeatConfig)
	u.DueDate.apply(&task.Schedule.DueDate)
	u.LastDone.apply(&task.Schedule.LastDone)
	assign(&task.IsSequential, u.IsSequential)
	assign(&task.Credits, u.Credits)
	assign(&task.DesiredCredits, u.DesiredCredits)
	assign(&task.Importance, u.Importance)
	assign(&task.IsAcknowledged, u.IsAcknowledged)
	assign(&task.CreditsTimestamp, u.CreditsTimestamp)
	assign(&task.PriorityTimestamp, u.PriorityTimestamp)
	assign(&task.Schedule.LeadTime, u.LeadTime)

	state.Tasks[a.ID] = task
	return nil
}

func assign[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func deleteTask(state *tasklens.TunnelState, a DeleteTask) error {
	if _, ok := state.Tasks[a.ID]; !ok {
		return notFound("task %q does not exist", a.ID)
	}
	doomed := tasklens.DescendantIDs(state, a.ID)
	tasklens.Detach(state, a.ID)
	delete(state.Tasks, a.ID)
	for _, id := range doomed {
		delete(state.Tasks, id)
	}
	return nil
}

func moveTask(state *tasklens.TunnelState, a MoveTask) error {
	task, ok := state.Tasks[a.ID]
	if !ok {
		return notFound("task %q does not exist", a.ID)
	}
	if samePtr(task.ParentID, a.NewParentID) {
		return nil
	}
	if a.NewParentID != nil {
		if _, ok := state.Tasks[*a.NewParentID]; !ok {
			return notFound("parent task %q does not exist", *a.NewParentID)
		}
		if *a.NewParentID == a.ID {
			return structural("cannot move task %q under itself", a.ID)
		}
		if tasklens.WouldCycle(state, a.ID, a.NewParentID) {
			return structural("cannot move task %q under its descendant %q", a.ID, *a.NewParentID)
		}
	}
	tasklens.Detach(state, a.ID)
	tasklens.Attach(state, a.ID, a.NewParentID)
	return nil
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func createPlace(state *tasklens.TunnelState, a CreatePlace) error {
	if a.ID == "" {
		return invalid("place id must not be empty")
	}
	if err := validatePlaceName(a.Name); err != nil {
		return err
	}
	if _, ok := state.Places[a.ID]; ok {
		return exists("place %q already exists", a.ID)
	}
	if err := validateIncludedPlaces(state, a.ID, a.IncludedPlaces); err != nil {
		return err
	}
	state.Places[a.ID] = tasklens.Place{
		ID:             a.ID,
		Name:           a.Name,
		Hours:          a.Hours,
		IncludedPlaces: append([]tasklens.PlaceID{}, a.IncludedPlaces...),
	}
	state.NextPlaceID++
	return nil
}

func updatePlace(state *tasklens.TunnelState, a UpdatePlace) error {
	place, ok := state.Places[a.ID]
	if !ok {
		return notFound("place %q does not exist", a.ID)
	}
	u := a.Updates
	if u.Name != nil {
		if err := validatePlaceName(*u.Name); err != nil {
			return err
		}
		place.Name = *u.Name
	}
	if u.Hours != nil {
		place.Hours = *u.Hours
	}
	if u.IncludedPlaces != nil {
		if err := validateIncludedPlaces(state, a.ID, *u.IncludedPlaces); err != nil {
			return err
		}
		place.IncludedPlaces = append([]tasklens.PlaceID{}, (*u.IncludedPlaces)...)
	}
	state.Places[a.ID] = place
	return nil
}

func deletePlace(state *tasklens.TunnelState, a DeletePlace) error {
	if a.ID == tasklens.AnywherePlaceID {
		return invalid("the %q place cannot be deleted", tasklens.AnywherePlaceID)
	}
	if _, ok := state.Places[a.ID]; !ok {
		return notFound("place %q does not exist", a.ID)
	}
	delete(state.Places, a.ID)
	for id, task := range state.Tasks {
		if task.PlaceID != nil && *task.PlaceID == a.ID {
			task.PlaceID = nil
			state.Tasks[id] = task
		}
	}
	for id, place := range state.Places {
		kept := make([]tasklens.PlaceID, 0, len(place.IncludedPlaces))
		for _, p := range place.IncludedPlaces {
			if p != a.ID {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(place.IncludedPlaces) {
			place.IncludedPlaces = kept
			state.Places[id] = place
		}
	}
	return nil
}

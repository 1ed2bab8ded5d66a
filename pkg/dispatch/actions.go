package dispatch

import "github.com/astromechza/tasklens-sync/pkg/tasklens"

// Action is one of the mutations defined in this package. The unexported method keeps the set closed.
type Action interface {
	actionName() string
}

// Name returns a short label for the action, used as the commit message.
func Name(a Action) string {
	if a == nil {
		return "nil"
	}
	return a.actionName()
}

type CreateTask struct {
	ID       tasklens.TaskID
	ParentID *tasklens.TaskID
	Title    string
}

// TaskUpdates holds a partial update. Pointer fields are left untouched when nil, Patch fields can also clear an optional
// value. The hierarchy is changed through MoveTask only.
type TaskUpdates struct {
	Title             *string
	Notes             *string
	Status            *tasklens.TaskStatus
	PlaceID           Patch[tasklens.PlaceID]
	IsSequential      *bool
	Credits           *float64
	DesiredCredits    *float64
	CreditIncrement   Patch[float64]
	Importance        *float64
	IsAcknowledged    *bool
	RepeatConfig      Patch[tasklens.RepeatConfig]
	CreditsTimestamp  *int64
	PriorityTimestamp *int64
	DueDate           Patch[int64]
	ScheduleType      *tasklens.ScheduleType
	LeadTime          *int64
	LastDone          Patch[int64]
}

type UpdateTask struct {
	ID      tasklens.TaskID
	Updates TaskUpdates
}

// DeleteTask removes the task and everything below it.
type DeleteTask struct {
	ID tasklens.TaskID
}

type CompleteTask struct {
	ID  tasklens.TaskID
	Now int64
}

// MoveTask re-parents a task. A nil NewParentID moves it to the root.
type MoveTask struct {
	ID          tasklens.TaskID
	NewParentID *tasklens.TaskID
}

// RefreshLifecycle is the periodic, time driven action that acknowledges completed tasks and wakes routines.
type RefreshLifecycle struct {
	Now int64
}

// SetBalanceDistribution assigns desiredCredits in bulk. Unknown ids are ignored.
type SetBalanceDistribution struct {
	Distribution map[tasklens.TaskID]float64
}

type CreatePlace struct {
	ID             tasklens.PlaceID
	Name           string
	Hours          string
	IncludedPlaces []tasklens.PlaceID
}

type PlaceUpdates struct {
	Name           *string
	Hours          *string
	IncludedPlaces *[]tasklens.PlaceID
}

type UpdatePlace struct {
	ID      tasklens.PlaceID
	Updates PlaceUpdates
}

type DeletePlace struct {
	ID tasklens.PlaceID
}

func (CreateTask) actionName() string             { return "CreateTask" }
func (UpdateTask) actionName() string             { return "UpdateTask" }
func (DeleteTask) actionName() string             { return "DeleteTask" }
func (CompleteTask) actionName() string           { return "CompleteTask" }
func (MoveTask) actionName() string               { return "MoveTask" }
func (RefreshLifecycle) actionName() string       { return "RefreshLifecycle" }
func (SetBalanceDistribution) actionName() string { return "SetBalanceDistribution" }
func (CreatePlace) actionName() string            { return "CreatePlace" }
func (UpdatePlace) actionName() string            { return "UpdatePlace" }
func (DeletePlace) actionName() string            { return "DeletePlace" }

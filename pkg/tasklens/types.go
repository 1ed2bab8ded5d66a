// Package tasklens holds the typed task-hierarchy snapshot and the pure rules applied to it. Nothing in here knows about
// automerge; the bridge package maps these types onto documents.
package tasklens

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type TaskID string

func NewTaskID() TaskID { return TaskID(uuid.NewString()) }

type PlaceID string

func NewPlaceID() PlaceID { return PlaceID(uuid.NewString()) }

// AnywherePlaceID is the reserved place meaning "any location". It can't be deleted.
const AnywherePlaceID PlaceID = "Anywhere"

type TaskStatus string

const (
	StatusPending TaskStatus = "Pending"
	StatusDone    TaskStatus = "Done"
)

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusPending, StatusDone:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

type ScheduleType string

const (
	ScheduleOnce      ScheduleType = "Once"
	ScheduleRoutinely ScheduleType = "Routinely"
	ScheduleDueDate   ScheduleType = "DueDate"
	ScheduleCalendar  ScheduleType = "Calendar"
)

func ParseScheduleType(s string) (ScheduleType, error) {
	switch ScheduleType(s) {
	case ScheduleOnce, ScheduleRoutinely, ScheduleDueDate, ScheduleCalendar:
		return ScheduleType(s), nil
	}
	return "", fmt.Errorf("unknown schedule type %q", s)
}

type Frequency string

const (
	FrequencyMinutes Frequency = "Minutes"
	FrequencyHours   Frequency = "Hours"
	FrequencyDaily   Frequency = "Daily"
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
	FrequencyYearly  Frequency = "Yearly"
)

// ParseFrequency is case-insensitive since older documents stored the lowercase spelling.
func ParseFrequency(s string) (Frequency, error) {
	for _, f := range []Frequency{FrequencyMinutes, FrequencyHours, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly} {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

type Schedule struct {
	Type ScheduleType `json:"type"`
	// DueDate, LeadTime and LastDone are unix milliseconds.
	DueDate  *int64 `json:"dueDate,omitempty"`
	LeadTime int64  `json:"leadTime"`
	LastDone *int64 `json:"lastDone,omitempty"`
}

type RepeatConfig struct {
	Frequency Frequency `json:"frequency"`
	Interval  int64     `json:"interval"`
}

type PersistedTask struct {
	ID                TaskID        `json:"id"`
	Title             string        `json:"title"`
	Notes             string        `json:"notes"`
	ParentID          *TaskID       `json:"parentId,omitempty"`
	ChildTaskIDs      []TaskID      `json:"childTaskIds"`
	PlaceID           *PlaceID      `json:"placeId,omitempty"`
	Status            TaskStatus    `json:"status"`
	Importance        float64       `json:"importance"`
	CreditIncrement   *float64      `json:"creditIncrement,omitempty"`
	Credits           float64       `json:"credits"`
	DesiredCredits    float64       `json:"desiredCredits"`
	CreditsTimestamp  int64         `json:"creditsTimestamp"`
	PriorityTimestamp int64         `json:"priorityTimestamp"`
	Schedule          Schedule      `json:"schedule"`
	RepeatConfig      *RepeatConfig `json:"repeatConfig,omitempty"`
	IsSequential      bool          `json:"isSequential"`
	IsAcknowledged    bool          `json:"isAcknowledged"`
	LastCompletedAt   *int64        `json:"lastCompletedAt,omitempty"`
}

type Place struct {
	ID   PlaceID `json:"id"`
	Name string  `json:"name"`
	// Hours is the JSON encoding of the opening hours, kept opaque here.
	Hours          string    `json:"hours"`
	IncludedPlaces []PlaceID `json:"includedPlaces"`
}

type DocMetadata struct {
	AutomergeURL *string `json:"automerge_url,omitempty"`
}

// TunnelState is the whole document as a typed snapshot.
type TunnelState struct {
	NextTaskID  int64                    `json:"nextTaskId"`
	NextPlaceID int64                    `json:"nextPlaceId"`
	Tasks       map[TaskID]PersistedTask `json:"tasks"`
	RootTaskIDs []TaskID                 `json:"rootTaskIds"`
	Places      map[PlaceID]Place        `json:"places"`
	Metadata    *DocMetadata             `json:"metadata,omitempty"`
}

func NewTunnelState() TunnelState {
	return TunnelState{
		NextTaskID:  1,
		NextPlaceID: 1,
		Tasks:       map[TaskID]PersistedTask{},
		RootTaskIDs: []TaskID{},
		Places:      map[PlaceID]Place{},
	}
}

// Clone returns a deep copy so that callers can mutate the result without aliasing slices or pointers.
func (s TunnelState) Clone() TunnelState {
	out := TunnelState{
		NextTaskID:  s.NextTaskID,
		NextPlaceID: s.NextPlaceID,
		Tasks:       make(map[TaskID]PersistedTask, len(s.Tasks)),
		RootTaskIDs: append([]TaskID{}, s.RootTaskIDs...),
		Places:      make(map[PlaceID]Place, len(s.Places)),
	}
	for k, v := range s.Tasks {
		out.Tasks[k] = v.Clone()
	}
	for k, v := range s.Places {
		v.IncludedPlaces = append([]PlaceID{}, v.IncludedPlaces...)
		out.Places[k] = v
	}
	if s.Metadata != nil {
		md := DocMetadata{AutomergeURL: clonePtr(s.Metadata.AutomergeURL)}
		out.Metadata = &md
	}
	return out
}

func (t PersistedTask) Clone() PersistedTask {
	out := t
	out.ParentID = clonePtr(t.ParentID)
	out.ChildTaskIDs = append([]TaskID{}, t.ChildTaskIDs...)
	out.PlaceID = clonePtr(t.PlaceID)
	out.CreditIncrement = clonePtr(t.CreditIncrement)
	out.Schedule.DueDate = clonePtr(t.Schedule.DueDate)
	out.Schedule.LastDone = clonePtr(t.Schedule.LastDone)
	out.RepeatConfig = clonePtr(t.RepeatConfig)
	out.LastCompletedAt = clonePtr(t.LastCompletedAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr is a small helper for building optional fields.
func Ptr[T any](v T) *T {
	return &v
}

func (f *Frequency) UnmarshalText(text []byte) error {
	parsed, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

package tasklens

import (
	"math"
	"testing"
)

// buildState links tasks from a child -> parent table, keeping the listed order for children and roots.
func buildState(t *testing.T, links [][2]string) TunnelState {
	t.Helper()
	s := NewTunnelState()
	for _, l := range links {
		var parent *PersistedTask
		if l[1] != "" {
			p, ok := s.Tasks[TaskID(l[1])]
			if !ok {
				t.Fatalf("parent %q must be declared before %q", l[1], l[0])
			}
			parent = &p
		}
		task := NewTask(TaskID(l[0]), l[0], parent)
		s.Tasks[task.ID] = task
		Attach(&s, task.ID, task.ParentID)
	}
	if err := CheckInvariants(&s); err != nil {
		t.Fatalf("fixture is not a forest: %v", err)
	}
	return s
}

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask("a", "Root Task", nil)
	if task.Status != StatusPending || task.Importance != DefaultImportance || task.DesiredCredits != DefaultDesiredCredits {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	if task.CreditIncrement == nil || *task.CreditIncrement != DefaultCreditIncrement {
		t.Fatalf("expected default credit increment, got %v", task.CreditIncrement)
	}
	if task.Schedule.Type != ScheduleOnce || task.Schedule.LeadTime != DefaultLeadTimeMillis {
		t.Fatalf("unexpected schedule %+v", task.Schedule)
	}
	if task.ParentID != nil || task.PlaceID != nil {
		t.Fatal("root task must not have a parent or place")
	}
}

func TestNewTaskInheritsFromParent(t *testing.T) {
	parent := NewTask("p", "Parent", nil)
	parent.PlaceID = Ptr(PlaceID("Work"))
	parent.CreditIncrement = Ptr(2.0)

	child := NewTask("c", "Child", &parent)
	if child.ParentID == nil || *child.ParentID != "p" {
		t.Fatalf("unexpected parent %v", child.ParentID)
	}
	if child.PlaceID == nil || *child.PlaceID != "Work" {
		t.Fatalf("place not inherited: %v", child.PlaceID)
	}
	if *child.CreditIncrement != 2.0 {
		t.Fatalf("credit increment not inherited: %v", *child.CreditIncrement)
	}
	// the child must not alias the parent's pointers
	*parent.PlaceID = "Home"
	if *child.PlaceID != "Work" {
		t.Fatal("child aliases parent place")
	}
}

func TestHierarchyWalks(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}, {"b", "a"}, {"c", "b"}, {"d", "a"}, {"e", ""}})

	if got := DescendantIDs(&s, "a"); len(got) != 3 || got[0] != "b" || got[1] != "d" || got[2] != "c" {
		t.Fatalf("unexpected descendants %v", got)
	}
	if got := AncestorIDs(&s, "c"); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("unexpected ancestors %v", got)
	}
	cases := []struct {
		id, parent TaskID
		want       bool
	}{
		{"a", "a", true},
		{"a", "c", true},
		{"b", "c", true},
		{"c", "a", false},
		{"a", "e", false},
	}
	for _, tc := range cases {
		if got := WouldCycle(&s, tc.id, Ptr(tc.parent)); got != tc.want {
			t.Errorf("WouldCycle(%s under %s) = %v", tc.id, tc.parent, got)
		}
	}
	if WouldCycle(&s, "c", nil) {
		t.Error("moving to the root can never cycle")
	}
}

func TestAncestorIDsTerminatesOnCorruptChain(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}, {"b", "a"}})
	a := s.Tasks["a"]
	a.ParentID = Ptr(TaskID("b"))
	s.Tasks["a"] = a

	if got := AncestorIDs(&s, "b"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected ancestors %v", got)
	}
}

func TestCompleteTask(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}})
	CompleteTask(&s, "a", 0)
	task := s.Tasks["a"]
	if task.Status != StatusDone || task.LastCompletedAt == nil || *task.LastCompletedAt != 0 {
		t.Fatalf("task not completed: %+v", task)
	}
	if math.Abs(task.Credits-0.5) > 1e-9 {
		t.Fatalf("expected 0.5 credits, got %v", task.Credits)
	}

	// one half-life later the old credits halve before the increment lands
	now := int64(CreditsHalfLifeMillis)
	CompleteTask(&s, "a", now)
	task = s.Tasks["a"]
	if math.Abs(task.Credits-0.75) > 1e-9 {
		t.Fatalf("expected 0.75 credits, got %v", task.Credits)
	}
	if task.CreditsTimestamp != now {
		t.Fatalf("credits timestamp not advanced: %d", task.CreditsTimestamp)
	}

	CompleteTask(&s, "missing", now)
	if len(s.Tasks) != 1 {
		t.Fatal("completing an unknown task must be a no-op")
	}
}

func TestAcknowledgeCompletedTasks(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}, {"b", ""}})
	CompleteTask(&s, "a", 10)
	AcknowledgeCompletedTasks(&s)
	if !s.Tasks["a"].IsAcknowledged {
		t.Error("done task not acknowledged")
	}
	if s.Tasks["b"].IsAcknowledged {
		t.Error("pending task must stay unacknowledged")
	}
}

func TestWakeUpRoutineTasks(t *testing.T) {
	s := buildState(t, [][2]string{{"routine-1", ""}})
	task := s.Tasks["routine-1"]
	task.Status = StatusDone
	task.IsAcknowledged = true
	task.Schedule = Schedule{Type: ScheduleRoutinely, LeadTime: 1000, DueDate: Ptr(int64(5))}
	task.RepeatConfig = &RepeatConfig{Frequency: FrequencyDaily, Interval: 1}
	task.LastCompletedAt = Ptr(int64(100000))
	s.Tasks[task.ID] = task

	// next due is 86,500,000 and the lead time opens the window at 86,499,000
	for _, now := range []int64{100500, 86498999} {
		WakeUpRoutineTasks(&s, now)
		if got := s.Tasks["routine-1"].Status; got != StatusDone {
			t.Fatalf("woke too early at %d: %s", now, got)
		}
	}

	WakeUpRoutineTasks(&s, 86499000)
	woken := s.Tasks["routine-1"]
	if woken.Status != StatusPending || woken.IsAcknowledged {
		t.Fatalf("expected pending and unacknowledged, got %+v", woken)
	}
	if woken.Schedule.LastDone == nil || *woken.Schedule.LastDone != 100000 {
		t.Fatalf("unexpected lastDone %v", woken.Schedule.LastDone)
	}
	if woken.Schedule.DueDate != nil {
		t.Fatal("due date should be cleared on wake")
	}
}

func TestWakeUpRoutineTasksAtDueDate(t *testing.T) {
	s := buildState(t, [][2]string{{"r", ""}})
	task := s.Tasks["r"]
	task.Status = StatusDone
	task.IsAcknowledged = true
	task.Schedule = Schedule{Type: ScheduleRoutinely, LeadTime: 1000}
	task.RepeatConfig = &RepeatConfig{Frequency: FrequencyDaily, Interval: 1}
	task.LastCompletedAt = Ptr(int64(100000))
	s.Tasks["r"] = task

	WakeUpRoutineTasks(&s, 86500000)
	if got := s.Tasks["r"]; got.Status != StatusPending || got.IsAcknowledged {
		t.Fatalf("expected wake at due date, got %+v", got)
	}
}

func TestWakeUpIgnoresNonRoutine(t *testing.T) {
	s := buildState(t, [][2]string{{"once", ""}})
	CompleteTask(&s, "once", 0)
	WakeUpRoutineTasks(&s, math.MaxInt32)
	if s.Tasks["once"].Status != StatusDone {
		t.Fatal("one-off task must stay done")
	}
}

func TestIntervalMillis(t *testing.T) {
	cases := map[Frequency]int64{
		FrequencyMinutes: 2 * 60_000,
		FrequencyHours:   2 * 3_600_000,
		FrequencyDaily:   2 * 86_400_000,
		FrequencyWeekly:  2 * 7 * 86_400_000,
		FrequencyMonthly: 2 * 30 * 86_400_000,
		FrequencyYearly:  2 * 365 * 86_400_000,
	}
	for f, want := range cases {
		if got := IntervalMillis(f, 2); got != want {
			t.Errorf("IntervalMillis(%s, 2) = %d, want %d", f, got, want)
		}
	}
}

func TestParseFrequencyIsCaseInsensitive(t *testing.T) {
	f, err := ParseFrequency("weekly")
	if err != nil || f != FrequencyWeekly {
		t.Fatalf("got %q, %v", f, err)
	}
	if _, err := ParseFrequency("fortnightly"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestHealDanglingParent(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}, {"b", "a"}, {"c", "b"}})
	delete(s.Tasks, "a")
	s.RootTaskIDs = []TaskID{}

	if n := Heal(&s); n == 0 {
		t.Fatal("expected repairs")
	}
	if err := CheckInvariants(&s); err != nil {
		t.Fatal(err)
	}
	if s.Tasks["b"].ParentID != nil || len(s.RootTaskIDs) != 1 || s.RootTaskIDs[0] != "b" {
		t.Fatalf("b should now be the only root: %v", s.RootTaskIDs)
	}
	if got := s.Tasks["b"].ChildTaskIDs; len(got) != 1 || got[0] != "c" {
		t.Fatalf("c should stay under b: %v", got)
	}
}

func TestHealBreaksCycleAtSmallestID(t *testing.T) {
	// two replicas concurrently moved x under y and y under x
	s := buildState(t, [][2]string{{"r", ""}, {"y", "r"}, {"x", "r"}})
	x, y := s.Tasks["x"], s.Tasks["y"]
	x.ParentID = Ptr(TaskID("y"))
	y.ParentID = Ptr(TaskID("x"))
	s.Tasks["x"], s.Tasks["y"] = x, y

	Heal(&s)
	if err := CheckInvariants(&s); err != nil {
		t.Fatal(err)
	}
	if s.Tasks["x"].ParentID != nil {
		t.Fatalf("x should be detached to the root, has parent %v", *s.Tasks["x"].ParentID)
	}
	if p := s.Tasks["y"].ParentID; p == nil || *p != "x" {
		t.Fatalf("y should remain under x")
	}
	if got := s.RootTaskIDs; len(got) != 2 || got[0] != "r" || got[1] != "x" {
		t.Fatalf("unexpected roots %v", got)
	}
	if got := s.Tasks["r"].ChildTaskIDs; len(got) != 0 {
		t.Fatalf("r should have no children left, got %v", got)
	}
}

func TestHealDeduplicatesAndKeepsOrder(t *testing.T) {
	s := buildState(t, [][2]string{{"p", ""}, {"c3", "p"}, {"c1", "p"}, {"c2", "p"}})
	p := s.Tasks["p"]
	p.ChildTaskIDs = []TaskID{"c3", "ghost", "c3", "c2"}
	s.Tasks["p"] = p
	s.RootTaskIDs = []TaskID{"p", "p"}

	Heal(&s)
	if err := CheckInvariants(&s); err != nil {
		t.Fatal(err)
	}
	want := []TaskID{"c3", "c2", "c1"}
	got := s.Tasks["p"].ChildTaskIDs
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if len(s.RootTaskIDs) != 1 {
		t.Fatalf("duplicate root kept: %v", s.RootTaskIDs)
	}
}

func TestHealIsNoopOnForest(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}, {"b", "a"}, {"c", ""}})
	if n := Heal(&s); n != 0 {
		t.Fatalf("expected no repairs, got %d", n)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := buildState(t, [][2]string{{"a", ""}, {"b", "a"}})
	c := s.Clone()
	a := c.Tasks["a"]
	a.ChildTaskIDs[0] = "z"
	c.RootTaskIDs[0] = "z"
	if s.Tasks["a"].ChildTaskIDs[0] != "b" || s.RootTaskIDs[0] != "a" {
		t.Fatal("clone shares slices with the original")
	}
}

package bridge

import (
	"errors"
	"reflect"
	"testing"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

func sampleState() tasklens.TunnelState {
	s := tasklens.NewTunnelState()
	s.NextTaskID = 4
	s.NextPlaceID = 2

	root := tasklens.NewTask("root", "Groceries", nil)
	root.PlaceID = tasklens.Ptr(tasklens.PlaceID("shop"))
	root.Notes = "milk, eggs"
	root.Schedule.DueDate = tasklens.Ptr(int64(1_700_000_000_000))

	child := tasklens.NewTask("child", "Eggs", &root)
	child.Status = tasklens.StatusDone
	child.IsAcknowledged = true
	child.LastCompletedAt = tasklens.Ptr(int64(1_700_000_100_000))
	child.Credits = 1.25
	child.CreditsTimestamp = 1_700_000_100_000

	routine := tasklens.NewTask("routine", "Water plants", nil)
	routine.CreditIncrement = nil
	routine.Schedule = tasklens.Schedule{Type: tasklens.ScheduleRoutinely, LeadTime: 3_600_000, LastDone: tasklens.Ptr(int64(5))}
	routine.RepeatConfig = &tasklens.RepeatConfig{Frequency: tasklens.FrequencyWeekly, Interval: 2}
	routine.IsSequential = true
	routine.PriorityTimestamp = 1<<60 + 1

	for _, t := range []tasklens.PersistedTask{root, child, routine} {
		s.Tasks[t.ID] = t
		tasklens.Attach(&s, t.ID, t.ParentID)
	}
	s.Places["shop"] = tasklens.Place{ID: "shop", Name: "Shop", Hours: `{"mon":"9-5"}`, IncludedPlaces: []tasklens.PlaceID{}}
	s.Places[tasklens.AnywherePlaceID] = tasklens.Place{ID: tasklens.AnywherePlaceID, Name: "Anywhere", IncludedPlaces: []tasklens.PlaceID{"shop"}}
	s.Metadata = &tasklens.DocMetadata{AutomergeURL: tasklens.Ptr("tasklens:abc")}
	return s.Clone()
}

func reconciled(t *testing.T, s tasklens.TunnelState) *automerge.Doc {
	t.Helper()
	doc := automerge.New()
	if err := Reconcile(doc, &s); err != nil {
		t.Fatal(err)
	}
	return doc
}

func hydrated(t *testing.T, doc *automerge.Doc) tasklens.TunnelState {
	t.Helper()
	s, err := Hydrate(doc)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func taskMap(t *testing.T, doc *automerge.Doc, id string) *automerge.Map {
	t.Helper()
	tasks, err := doc.RootMap().Get(keyTasks)
	if err != nil {
		t.Fatal(err)
	}
	task, err := tasks.Map().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return task.Map()
}

func TestRoundTrip(t *testing.T) {
	want := sampleState()
	doc := reconciled(t, want)
	if got := hydrated(t, doc); !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, want)
	}

	loaded, err := automerge.Load(doc.Save())
	if err != nil {
		t.Fatal(err)
	}
	if got := hydrated(t, loaded); !reflect.DeepEqual(got, want) {
		t.Fatal("round trip through save and load changed the state")
	}
}

func TestHydrateEmptyDocument(t *testing.T) {
	got := hydrated(t, automerge.New())
	if !reflect.DeepEqual(got, tasklens.NewTunnelState()) {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	s := sampleState()
	doc := reconciled(t, s)
	if _, err := doc.Commit("initial"); err != nil {
		t.Fatal(err)
	}
	heads := doc.Heads()

	again := hydrated(t, doc)
	if err := Reconcile(doc, &again); err != nil {
		t.Fatal(err)
	}
	if err := Reconcile(doc, &s); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(doc.Heads(), heads) {
		t.Fatal("reconciling an unchanged state wrote new operations")
	}
}

func TestClearNestedOptional(t *testing.T) {
	s := sampleState()
	doc := reconciled(t, s)

	root := s.Tasks["root"]
	root.Schedule.DueDate = nil
	root.PlaceID = nil
	s.Tasks["root"] = root
	if err := Reconcile(doc, &s); err != nil {
		t.Fatal(err)
	}

	got := hydrated(t, doc)
	if got.Tasks["root"].Schedule.DueDate != nil || got.Tasks["root"].PlaceID != nil {
		t.Fatal("optional fields were not cleared")
	}
	if got.Tasks["root"].Schedule.LeadTime != tasklens.DefaultLeadTimeMillis {
		t.Fatal("clearing dueDate damaged the rest of the schedule")
	}
	v, err := doc.Path(keyTasks, "root", keySchedule, keyDueDate).Get()
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsVoid() {
		t.Fatalf("dueDate should be absent, found kind %v", v.Kind())
	}
}

func TestReconcileRemovesDeletedEntries(t *testing.T) {
	s := sampleState()
	doc := reconciled(t, s)

	delete(s.Tasks, "routine")
	s.RootTaskIDs = []tasklens.TaskID{"root"}
	delete(s.Places, "shop")
	s.Metadata = nil
	if err := Reconcile(doc, &s); err != nil {
		t.Fatal(err)
	}
	if got := hydrated(t, doc); !reflect.DeepEqual(got, s) {
		t.Fatalf("unexpected state after removal: %+v", got)
	}
}

func TestReconcileReordersLists(t *testing.T) {
	s := tasklens.NewTunnelState()
	for _, id := range []tasklens.TaskID{"a", "b", "c", "d"} {
		s.Tasks[id] = tasklens.NewTask(id, string(id), nil)
		tasklens.Attach(&s, id, nil)
	}
	doc := reconciled(t, s)

	for _, order := range [][]tasklens.TaskID{
		{"d", "a", "b", "c"},
		{"d", "c"},
		{"x", "d", "c", "y"},
		{},
		{"a"},
	} {
		s.RootTaskIDs = order
		if err := Reconcile(doc, &s); err != nil {
			t.Fatal(err)
		}
		if got := hydrated(t, doc).RootTaskIDs; !reflect.DeepEqual(got, order) {
			t.Fatalf("got %v, want %v", got, order)
		}
	}
}

func TestHydrateIntegerPreserving(t *testing.T) {
	doc := reconciled(t, sampleState())
	task := taskMap(t, doc, "routine")

	if got := hydrated(t, doc).Tasks["routine"].PriorityTimestamp; got != 1<<60+1 {
		t.Fatalf("large integer lost precision: %d", got)
	}

	if err := task.Set(keyCreditsTimestamp, float64(1234)); err != nil {
		t.Fatal(err)
	}
	if got := hydrated(t, doc).Tasks["routine"].CreditsTimestamp; got != 1234 {
		t.Fatalf("integral float not accepted: %d", got)
	}

	if err := task.Set(keyCreditsTimestamp, 12.5); err != nil {
		t.Fatal(err)
	}
	_, err := Hydrate(doc)
	var herr *HydrateError
	if !errors.As(err, &herr) || herr.Path != "tasks.routine.creditsTimestamp" {
		t.Fatalf("expected a hydrate error for a fractional timestamp, got %v", err)
	}
}

func TestHydrateCorruption(t *testing.T) {
	cases := map[string]struct {
		mutate func(m *automerge.Map) error
		path   string
	}{
		"missing title": {
			mutate: func(m *automerge.Map) error { return m.Delete(keyTitle) },
			path:   "tasks.root.title",
		},
		"title of wrong kind": {
			mutate: func(m *automerge.Map) error { return m.Set(keyTitle, int64(5)) },
			path:   "tasks.root.title",
		},
		"unknown status": {
			mutate: func(m *automerge.Map) error { return m.Set(keyStatus, "Archived") },
			path:   "tasks.root.status",
		},
		"schedule not a map": {
			mutate: func(m *automerge.Map) error { return m.Set(keySchedule, "soon") },
			path:   "tasks.root.schedule",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc := reconciled(t, sampleState())
			if err := tc.mutate(taskMap(t, doc, "root")); err != nil {
				t.Fatal(err)
			}
			_, err := Hydrate(doc)
			var herr *HydrateError
			if !errors.As(err, &herr) {
				t.Fatalf("expected HydrateError, got %v", err)
			}
			if herr.Path != tc.path {
				t.Fatalf("unexpected path %q", herr.Path)
			}
		})
	}
}

func TestHydrateDefaultsOptionalFlags(t *testing.T) {
	doc := reconciled(t, sampleState())
	task := taskMap(t, doc, "child")
	for _, k := range []string{keyNotes, keyChildTaskIDs, keyIsSequential, keyIsAcknowledged} {
		if err := task.Delete(k); err != nil {
			t.Fatal(err)
		}
	}
	got := hydrated(t, doc).Tasks["child"]
	if got.Notes != "" || len(got.ChildTaskIDs) != 0 || got.IsSequential || got.IsAcknowledged {
		t.Fatalf("unexpected defaults %+v", got)
	}
}

func TestCrossFormatParity(t *testing.T) {
	s := sampleState()
	exported, err := Export(&s)
	if err != nil {
		t.Fatal(err)
	}
	fromDoc, err := DocumentJSON(reconciled(t, s))
	if err != nil {
		t.Fatal(err)
	}
	a, err := Normalize(exported)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize(fromDoc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("formats diverge\nexport:   %s\ndocument: %s", exported, fromDoc)
	}
}

func TestImport(t *testing.T) {
	s := sampleState()
	raw, err := Export(&s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Import(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("import mismatch: %+v", got)
	}

	legacy := []byte(`{"nextTaskId":1,"nextPlaceId":1,"rootTaskIds":["a"],"places":{},"tasks":{"a":{"id":"a","title":"A",
		"status":"Pending","importance":1,"credits":0,"desiredCredits":1,"creditsTimestamp":0,"priorityTimestamp":0,
		"schedule":{"type":"Routinely","leadTime":0},"repeatConfig":{"frequency":"daily","interval":1}}}}`)
	got, err = Import(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if f := got.Tasks["a"].RepeatConfig.Frequency; f != tasklens.FrequencyDaily {
		t.Fatalf("lowercase frequency not accepted: %q", f)
	}
	if got.Tasks["a"].ChildTaskIDs == nil {
		t.Fatal("missing child list should import as empty")
	}

	if _, err := Import([]byte(`{"tasks":{"a":{"status":"Nope","schedule":{"type":"Once"}}}}`)); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestConcurrentFieldEditsMerge(t *testing.T) {
	s := sampleState()
	doc := reconciled(t, s)
	if _, err := doc.Commit("initial"); err != nil {
		t.Fatal(err)
	}
	fork, err := doc.Fork()
	if err != nil {
		t.Fatal(err)
	}

	left := hydrated(t, doc)
	task := left.Tasks["root"]
	task.Title = "Groceries for the week"
	left.Tasks["root"] = task
	if err := Reconcile(doc, &left); err != nil {
		t.Fatal(err)
	}
	if _, err := doc.Commit("rename"); err != nil {
		t.Fatal(err)
	}

	right := hydrated(t, fork)
	task = right.Tasks["root"]
	task.Notes = "and bread"
	right.Tasks["root"] = task
	if err := Reconcile(fork, &right); err != nil {
		t.Fatal(err)
	}
	if _, err := fork.Commit("notes"); err != nil {
		t.Fatal(err)
	}

	if _, err := doc.Merge(fork); err != nil {
		t.Fatal(err)
	}
	merged := hydrated(t, doc).Tasks["root"]
	if merged.Title != "Groceries for the week" || merged.Notes != "and bread" {
		t.Fatalf("concurrent edits to different fields were lost: %+v", merged)
	}
}

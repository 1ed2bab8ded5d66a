package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astromechza/tasklens-sync/pkg/syncserver"
)

func run(t *testing.T, store string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--store", store}, args...))
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func mustRun(t *testing.T, store string, args ...string) string {
	t.Helper()
	out, err := run(t, store, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, out)
	}
	return out
}

func exportState(t *testing.T, store, url string) map[string]any {
	t.Helper()
	var state map[string]any
	if err := json.Unmarshal([]byte(mustRun(t, store, "export", url)), &state); err != nil {
		t.Fatal(err)
	}
	return state
}

func TestTaskWorkflow(t *testing.T) {
	store := filepath.Join(t.TempDir(), "store.sqlite3")
	url := mustRun(t, store, "new")
	if !strings.HasPrefix(url, "tasklens:") {
		t.Fatalf("unexpected url %q", url)
	}
	if got := mustRun(t, store, "list"); got != url {
		t.Fatalf("expected list to show %q, got %q", url, got)
	}

	parent := mustRun(t, store, "task", "add", url, "Groceries")
	child := mustRun(t, store, "task", "add", url, "Milk", "--parent", parent)
	mustRun(t, store, "task", "edit", url, child, "--notes", "oat", "--repeat", "weekly:2")
	mustRun(t, store, "task", "done", url, child)

	tree := mustRun(t, store, "task", "ls", url)
	if !strings.Contains(tree, "[ ] Groceries") || !strings.Contains(tree, "  [x] Milk") {
		t.Fatalf("unexpected tree:\n%s", tree)
	}

	if _, err := run(t, store, "task", "move", url, parent, "--parent", child); err == nil {
		t.Fatal("expected moving a task under its own child to fail")
	}

	tasks := exportState(t, store, url)["tasks"].(map[string]any)
	milk := tasks[child].(map[string]any)
	if milk["notes"] != "oat" || milk["status"] != "Done" {
		t.Fatalf("unexpected task %v", milk)
	}
	if rc := milk["repeatConfig"].(map[string]any); rc["frequency"] != "Weekly" || rc["interval"] != float64(2) {
		t.Fatalf("unexpected repeat %v", rc)
	}

	mustRun(t, store, "task", "rm", url, parent)
	if tasks := exportState(t, store, url)["tasks"].(map[string]any); len(tasks) != 0 {
		t.Fatalf("expected cascade delete, got %v", tasks)
	}

	inspect := mustRun(t, store, "inspect", url)
	if !strings.HasPrefix(inspect, "# 0 tasks") || !strings.Contains(inspect, "0 repairs") {
		t.Fatalf("unexpected inspect output:\n%s", inspect)
	}
}

func TestPlacesAndImport(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store.sqlite3")
	url := mustRun(t, store, "new")
	place := mustRun(t, store, "place", "add", url, "Shop")
	task := mustRun(t, store, "task", "add", url, "Bread")
	mustRun(t, store, "task", "edit", url, task, "--place", place)
	mustRun(t, store, "place", "rename", url, place, "Bakery")
	if got := mustRun(t, store, "place", "ls", url); got != place+"  Bakery" {
		t.Fatalf("unexpected places %q", got)
	}

	exported := filepath.Join(dir, "export.json")
	if err := os.WriteFile(exported, []byte(mustRun(t, store, "export", url)), 0o600); err != nil {
		t.Fatal(err)
	}
	imported := mustRun(t, store, "import", exported)
	if imported == url {
		t.Fatal("expected import to create a new document")
	}
	tasks := exportState(t, store, imported)["tasks"].(map[string]any)
	if tasks[task].(map[string]any)["placeId"] != place {
		t.Fatalf("expected the place to survive import, got %v", tasks[task])
	}

	mustRun(t, store, "place", "rm", url, place)
	tasks = exportState(t, store, url)["tasks"].(map[string]any)
	if _, ok := tasks[task].(map[string]any)["placeId"]; ok {
		t.Fatal("expected the place reference to be cleared")
	}
}

func TestUnknownDocument(t *testing.T) {
	store := filepath.Join(t.TempDir(), "store.sqlite3")
	if _, err := run(t, store, "inspect", "not-a-document"); err == nil {
		t.Fatal("expected an invalid id to fail")
	}
	url := mustRun(t, filepath.Join(t.TempDir(), "other.sqlite3"), "new")
	if _, err := run(t, store, "export", url); err == nil || !strings.Contains(err.Error(), "is not in") {
		t.Fatalf("expected a missing document error, got %v", err)
	}
}

func TestSyncBetweenStores(t *testing.T) {
	dir := t.TempDir()
	l, err := syncserver.OpenSQLiteLog(context.Background(), filepath.Join(dir, "log.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	ts := httptest.NewServer(syncserver.New(syncserver.DefaultConfig(), l).Handler())
	defer ts.Close()
	server := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sync"

	laptop, phone := filepath.Join(dir, "laptop.sqlite3"), filepath.Join(dir, "phone.sqlite3")
	url := mustRun(t, laptop, "new")
	task := mustRun(t, laptop, "task", "add", url, "Call mum")

	syncArgs := []string{"sync", url, "--server", server, "--secret", "correct horse battery staple", "--interval", "50ms", "--duration", "1s"}
	if out := mustRun(t, laptop, syncArgs...); !strings.Contains(out, "synced") {
		t.Fatalf("unexpected sync output %q", out)
	}
	mustRun(t, phone, syncArgs...)

	tasks := exportState(t, phone, url)["tasks"].(map[string]any)
	if tasks[task].(map[string]any)["title"] != "Call mum" {
		t.Fatalf("expected the task to reach the phone, got %v", tasks)
	}
}

package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sidekickd/sidekick/internal/autonomy"
	"github.com/sidekickd/sidekick/internal/gateway"
	"github.com/sidekickd/sidekick/internal/memory"
	"github.com/sidekickd/sidekick/internal/tools"
)

func openTestStateStore(t *testing.T, dbPath string) *SQLiteStateStore {
	t.Helper()
	s, err := OpenSQLiteStateStore(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLiteStateStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateStoreRoundtrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	first := openTestStateStore(t, dbPath)

	st := NewState("book the dentist", 0)
	st.Status = StatusWaitingUser
	st.StepCount = 2
	st.Question = "May I run write_file?"
	st.Context.PendingConfirmation = &PendingConfirmation{
		Tool: "write_file",
		Args: map[string]any{"path": "/tmp/note.txt", "content": "hi"},
	}
	st.History = append(st.History, HistoryEntry{Step: 1, Timestamp: time.Now(), Action: "list_dir", Result: "ok: 3 entries"})
	st.UpdatedAt = time.Now()
	if err := first.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	// A second handle on the same file stands in for a fresh process.
	second := openTestStateStore(t, dbPath)
	got, err := second.LoadState(st.ID)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got == nil {
		t.Fatal("saved state must be loadable from another handle")
	}
	if got.Status != StatusWaitingUser || got.StepCount != 2 || got.Question != st.Question {
		t.Fatalf("state fields lost: %+v", got)
	}
	pc := got.Context.PendingConfirmation
	if pc == nil || pc.Tool != "write_file" || pc.Args["path"] != "/tmp/note.txt" {
		t.Fatalf("pending confirmation lost: %+v", pc)
	}
	if len(got.History) != 1 || got.History[0].Action != "list_dir" {
		t.Fatalf("history lost: %+v", got.History)
	}

	if err := second.DeleteState(st.ID); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	if got, err := second.LoadState(st.ID); err != nil || got != nil {
		t.Fatalf("deleted state should load as absent: %v %v", got, err)
	}
}

func TestStateStoreUnknownID(t *testing.T) {
	s := openTestStateStore(t, filepath.Join(t.TempDir(), "state.db"))
	got, err := s.LoadState("nope")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got != nil {
		t.Fatalf("unknown id must load as (nil, nil), got %+v", got)
	}
	if err := s.DeleteState("nope"); err != nil {
		t.Fatalf("deleting an unknown id is not an error: %v", err)
	}
}

// newPersistentLoop builds a loop with its own cache over a shared state
// database, standing in for one process.
func newPersistentLoop(t *testing.T, dbPath string, replies ...string) (*Loop, *scriptProvider) {
	t.Helper()
	store, err := memory.NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	policy := autonomy.NewEngine(autonomy.DefaultDocument())
	policy.SetClock(func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) })
	prov := &scriptProvider{replies: replies}
	gw := gateway.New(tools.DefaultRegistry(store), nil)
	loop := New(prov, store, policy, gw, Options{
		Cache:  NewStateCache(DefaultCacheSize),
		States: openTestStateStore(t, dbPath),
	})
	return loop, prov
}

func TestResumeAcrossProcesses(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	first, _ := newPersistentLoop(t, dbPath,
		`{"decision":"ask_user","question":"Which calendar should I use?"}`,
	)
	st, err := first.Run(context.Background(), "schedule the meeting", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Status != StatusWaitingUser {
		t.Fatalf("expected WAITING_USER, got %s", st.Status)
	}

	// A new loop with an empty cache: only the database knows the run.
	second, prov := newPersistentLoop(t, dbPath,
		`{"decision":"stop","success":true,"result":"booked"}`,
	)
	resumed, err := second.Resume(context.Background(), st.ID, "the work calendar")
	if err != nil {
		t.Fatalf("Resume after restart: %v", err)
	}
	if resumed.Status != StatusSuccess {
		t.Fatalf("resumed run should finish, got %s (%s)", resumed.Status, resumed.FinalResult)
	}
	found := false
	for _, p := range prov.prompts {
		if strings.Contains(p, "the work calendar") {
			found = true
		}
	}
	if !found {
		t.Fatal("user response missing from the resumed prompt")
	}

	// Terminal runs are cleaned up, so the id cannot be resumed twice.
	checker := openTestStateStore(t, dbPath)
	if got, err := checker.LoadState(st.ID); err != nil || got != nil {
		t.Fatalf("finished run should be removed from the store: %v %v", got, err)
	}
}

func TestRunPersistsPauseState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	target := filepath.Join(t.TempDir(), "note.txt")
	loop, _ := newPersistentLoop(t, dbPath,
		toolCall("write_file", fmt.Sprintf(`{"path":%q,"content":"hi"}`, target)),
	)

	st, err := loop.Run(context.Background(), "write a note", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Status != StatusWaitingUser {
		t.Fatalf("expected WAITING_USER, got %s", st.Status)
	}

	checker := openTestStateStore(t, dbPath)
	got, err := checker.LoadState(st.ID)
	if err != nil || got == nil {
		t.Fatalf("paused run must be persisted: %v %v", got, err)
	}
	pc := got.Context.PendingConfirmation
	if pc == nil || pc.Tool != "write_file" || pc.Args["path"] != target {
		t.Fatalf("persisted pending confirmation must echo the call: %+v", pc)
	}
}

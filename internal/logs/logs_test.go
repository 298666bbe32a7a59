package logs

import (
	"os"
	"testing"
	"time"
)

func resetOpLogs(t *testing.T) {
	t.Helper()
	opLogsMu.Lock()
	opLogs = nil
	opLogsMu.Unlock()
}

func TestLogOperationRetainsNewestOrder(t *testing.T) {
	resetOpLogs(t)
	t.Setenv("DATA_DIR", t.TempDir())

	LogOperation("alice", "login", "ok", "127.0.0.1")
	LogOperation("alice", "install", "plugin foo", "127.0.0.1")

	got := GetLogs()
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[0].Action != "install" || got[1].Action != "login" {
		t.Fatalf("expected newest-first order, got %+v", got)
	}
}

func TestLogOperationTrimsTo1000(t *testing.T) {
	resetOpLogs(t)
	t.Setenv("DATA_DIR", t.TempDir())

	opLogsMu.Lock()
	for i := 0; i < 1000; i++ {
		opLogs = append(opLogs, OperationLog{Time: time.Now(), Username: "bob", Action: "login"})
	}
	opLogsMu.Unlock()

	LogOperation("bob", "logout", "", "10.0.0.1")

	opLogsMu.RLock()
	n := len(opLogs)
	opLogsMu.RUnlock()
	if n != 1000 {
		t.Fatalf("expected log slice capped at 1000, got %d", n)
	}

	got := GetLogs()
	if got[0].Action != "logout" {
		t.Fatalf("expected newest entry first after trim, got %+v", got[0])
	}
}

func TestGetRecentLogsLimit(t *testing.T) {
	resetOpLogs(t)
	t.Setenv("DATA_DIR", t.TempDir())

	for i := 0; i < 5; i++ {
		LogOperation("carol", "action", "", "")
	}

	recent := GetRecentLogs(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent logs, got %d", len(recent))
	}

	all := GetRecentLogs(0)
	if len(all) != 5 {
		t.Fatalf("expected limit<=0 to return all 5 logs, got %d", len(all))
	}

	over := GetRecentLogs(100)
	if len(over) != 5 {
		t.Fatalf("expected over-large limit clamped to 5, got %d", len(over))
	}
}

func TestLoadOpLogsRoundTrips(t *testing.T) {
	resetOpLogs(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	LogOperation("dave", "login", "", "192.168.1.1")
	// LogOperation saves asynchronously; operationsFilePath is deterministic
	// per DATA_DIR so re-reading immediately after a synchronous save call
	// exercises the same path LoadOpLogs uses at startup.
	saveOpLogs()

	resetOpLogs(t)
	LoadOpLogs()

	got := GetLogs()
	if len(got) != 1 || got[0].Username != "dave" {
		t.Fatalf("expected restored log for dave, got %+v", got)
	}
}

func TestLoadOpLogsMissingFileIsNoop(t *testing.T) {
	resetOpLogs(t)
	t.Setenv("DATA_DIR", t.TempDir())

	LoadOpLogs()

	if got := GetLogs(); len(got) != 0 {
		t.Fatalf("expected no logs from missing file, got %+v", got)
	}
}

func TestForwardTaskEventWithoutJournaldFallsBackToLogger(t *testing.T) {
	// journald is never available in the test sandbox, so this exercises
	// the log.Printf fallback branch; it only needs to not panic.
	ForwardTaskEvent("task-1", "install", "my_plugin", "completed", "done")
	ForwardTaskEvent("task-2", "uninstall", "my_plugin", "failed", "boom")
}

func TestOperationsFilePathDefault(t *testing.T) {
	os.Unsetenv("DATA_DIR")
	if got := operationsFilePath(); got != "/data/operations.json" {
		t.Fatalf("expected default path, got %q", got)
	}
}

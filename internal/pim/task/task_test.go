package task

import (
	"testing"
	"time"
)

func strPtr(s string) *string     { return &s }
func statusPtr(s Status) *Status  { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestCreateAllocatesMonotonicID(t *testing.T) {
	m := NewManager(time.Minute)
	t1 := m.Create(ActionInstall, "p1", Params{})
	t2 := m.Create(ActionInstall, "p2", Params{})
	if t1.ID != "install_1" || t2.ID != "install_2" {
		t.Fatalf("got ids %q, %q; want install_1, install_2", t1.ID, t2.ID)
	}
	if t1.Status != StatusRunning || t1.Progress != 0 {
		t.Errorf("new task should start running at progress 0, got %v/%v", t1.Status, t1.Progress)
	}
}

func TestMessageDedupAgainstPreviousEntryOnly(t *testing.T) {
	m := NewManager(time.Minute)
	tk := m.Create(ActionInstall, "p1", Params{})

	m.Apply(tk.ID, Update{Message: strPtr("step one")})
	m.Apply(tk.ID, Update{Message: strPtr("step one")}) // duplicate of previous: collapsed
	m.Apply(tk.ID, Update{Message: strPtr("step two")})
	m.Apply(tk.ID, Update{Message: strPtr("step one")}) // not a duplicate of the *previous* entry

	got, ok := m.Get(tk.ID)
	if !ok {
		t.Fatal("expected task to be present")
	}
	want := []string{"step one", "step two", "step one"}
	if len(got.AllMessages) != len(want) {
		t.Fatalf("AllMessages = %v, want %v", got.AllMessages, want)
	}
	for i := range want {
		if got.AllMessages[i] != want[i] {
			t.Errorf("AllMessages[%d] = %q, want %q", i, got.AllMessages[i], want[i])
		}
	}
}

func TestErrorMessagesSubsetOfAllMessages(t *testing.T) {
	m := NewManager(time.Minute)
	tk := m.Create(ActionInstall, "p1", Params{})

	m.Apply(tk.ID, Update{Message: strPtr("downloading release")})
	m.Apply(tk.ID, Update{Message: strPtr("download failed: timeout")})

	got, _ := m.Get(tk.ID)
	if len(got.ErrorMessages) != 1 || got.ErrorMessages[0] != "download failed: timeout" {
		t.Fatalf("ErrorMessages = %v", got.ErrorMessages)
	}
	found := false
	for _, m := range got.AllMessages {
		if m == got.ErrorMessages[0] {
			found = true
		}
	}
	if !found {
		t.Error("every error message must also be present in AllMessages")
	}
}

func TestStatusMonotonicAndEndTimeSetOnce(t *testing.T) {
	m := NewManager(time.Minute)
	tk := m.Create(ActionInstall, "p1", Params{})

	m.Apply(tk.ID, Update{Status: statusPtr(StatusCompleted)})
	got, _ := m.Get(tk.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", got.Status)
	}
	if got.EndTime == nil {
		t.Fatal("expected EndTime to be set on terminal transition")
	}
	if got.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0 on completion", got.Progress)
	}
	firstEnd := *got.EndTime

	// Attempting to move status again must not un-terminate the task.
	m.Apply(tk.ID, Update{Status: statusPtr(StatusFailed)})
	got2, _ := m.Get(tk.ID)
	if got2.Status != StatusCompleted {
		t.Errorf("status must not move once terminal, got %v", got2.Status)
	}
	if !got2.EndTime.Equal(firstEnd) {
		t.Error("EndTime must be set exactly once, on the first terminal transition")
	}
}

func TestGetAllReturnsSnapshotsNotAliases(t *testing.T) {
	m := NewManager(time.Minute)
	tk := m.Create(ActionInstall, "p1", Params{})
	m.Apply(tk.ID, Update{Message: strPtr("hello")})

	all := m.GetAll()
	snap := all[tk.ID]
	snap.AllMessages[0] = "mutated"

	again, _ := m.Get(tk.ID)
	if again.AllMessages[0] != "hello" {
		t.Error("GetAll must return a defensive copy; caller mutation leaked into the store")
	}
}

func TestGCSweepRemovesOldTerminalTasks(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	tk := m.Create(ActionInstall, "p1", Params{})
	m.Apply(tk.ID, Update{Status: statusPtr(StatusCompleted)})

	time.Sleep(20 * time.Millisecond)
	if _, ok := m.Get(tk.ID); ok {
		t.Error("expected terminal task older than retention to be swept")
	}
}

func TestRunningTaskNeverSwept(t *testing.T) {
	m := NewManager(1 * time.Millisecond)
	tk := m.Create(ActionInstall, "p1", Params{})
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get(tk.ID); !ok {
		t.Error("a running task must never be garbage-collected regardless of age")
	}
}

func TestSubscribeReceivesAppendedMessages(t *testing.T) {
	m := NewManager(time.Minute)
	tk := m.Create(ActionInstall, "p1", Params{})
	ch := m.Subscribe(tk.ID)

	m.Apply(tk.ID, Update{Message: strPtr("progressing")})

	select {
	case msg := <-ch:
		if msg != "progressing" {
			t.Errorf("got %q, want %q", msg, "progressing")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber fan-out")
	}
}

// Package task implements the PIM Task Manager: lifecycle, progress
// messages, completion retention, and message dedup.
package task

import (
	"strings"
	"time"
)

// Action is the kind of operation a task represents.
type Action string

const (
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
)

// Status is a task's lifecycle state. It moves running -> {completed, failed}
// and never back.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Params carries the optional install parameters a task was created with.
type Params struct {
	Version string
	RepoURL string
}

// Task is one user-initiated install/uninstall operation.
type Task struct {
	ID       string
	Action   Action
	PluginID string
	Status   Status
	Progress float64

	Message       string
	AllMessages   []string
	ErrorMessages []string

	StartTime  time.Time
	EndTime    *time.Time
	AccessTime time.Time

	Params Params
}

// errorKeywords classifies a message as an error: it contains any of a
// fixed keyword set, including a localized equivalent.
var errorKeywords = []string{"error", "failed", "fail", "⚠", "错误", "失败"}

func isErrorMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// snapshot returns a defensive copy of t so callers never observe another
// goroutine's in-progress mutation or alias shared slices.
func (t *Task) snapshot() *Task {
	cp := *t
	cp.AllMessages = append([]string(nil), t.AllMessages...)
	cp.ErrorMessages = append([]string(nil), t.ErrorMessages...)
	if t.EndTime != nil {
		end := *t.EndTime
		cp.EndTime = &end
	}
	return &cp
}

// Package logs keeps the in-memory/on-disk operator audit trail and forwards
// PIM task terminal transitions to journald when one is available.
package logs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// OperationLog is one operator-initiated action (login, password change,
// install/uninstall request) recorded for audit purposes.
type OperationLog struct {
	Time      time.Time
	Username  string
	Action    string
	Details   string
	IPAddress string
}

var (
	opLogs   []OperationLog
	opLogsMu sync.RWMutex
)

// LogOperation records an operator action, retaining the most recent 1000.
func LogOperation(username, action, details, ip string) {
	opLogsMu.Lock()
	defer opLogsMu.Unlock()

	opLogs = append(opLogs, OperationLog{
		Time:      time.Now(),
		Username:  username,
		Action:    action,
		Details:   details,
		IPAddress: ip,
	})
	if len(opLogs) > 1000 {
		opLogs = opLogs[len(opLogs)-1000:]
	}

	go saveOpLogs()
}

func saveOpLogs() {
	opLogsMu.RLock()
	data, err := json.MarshalIndent(opLogs, "", "  ")
	opLogsMu.RUnlock()

	if err != nil {
		log.Printf("Error marshaling logs: %v", err)
		return
	}
	_ = os.WriteFile(operationsFilePath(), data, 0o666)
}

func operationsFilePath() string {
	if v := os.Getenv("DATA_DIR"); v != "" {
		return v + "/operations.json"
	}
	return "/data/operations.json"
}

// LoadOpLogs restores the audit trail from disk at startup.
func LoadOpLogs() {
	data, err := os.ReadFile(operationsFilePath())
	if err != nil {
		return
	}
	opLogsMu.Lock()
	defer opLogsMu.Unlock()
	_ = json.Unmarshal(data, &opLogs)
}

// GetLogs returns every retained operation log, newest first.
func GetLogs() []OperationLog {
	opLogsMu.RLock()
	defer opLogsMu.RUnlock()

	count := len(opLogs)
	out := make([]OperationLog, count)
	for i, l := range opLogs {
		out[count-1-i] = l
	}
	return out
}

// GetRecentLogs returns up to limit operation logs, newest first.
func GetRecentLogs(limit int) []OperationLog {
	opLogsMu.RLock()
	defer opLogsMu.RUnlock()

	if limit <= 0 || limit > len(opLogs) {
		limit = len(opLogs)
	}
	out := make([]OperationLog, limit)
	for i := 0; i < limit; i++ {
		out[i] = opLogs[len(opLogs)-1-i]
	}
	return out
}

// ForwardTaskEvent forwards a PIM task's terminal transition to journald,
// tagged with the task id, action and plugin id so `journalctl` can filter
// on them. Falls back to the standard logger when no journal is present
// (e.g. running outside systemd, or in tests).
func ForwardTaskEvent(taskID, action, pluginID, status, message string) {
	priority := journal.PriInfo
	if status == "failed" {
		priority = journal.PriErr
	}
	vars := map[string]string{
		"TASK_ID":   taskID,
		"ACTION":    action,
		"PLUGIN_ID": pluginID,
		"STATUS":    status,
	}
	if !journal.Enabled() {
		log.Printf("pim task %s [%s/%s] %s: %s", taskID, action, pluginID, status, message)
		return
	}
	if err := journal.Send(message, priority, vars); err != nil {
		log.Printf("pim: journald forward failed for task %s: %v", taskID, err)
	}
}

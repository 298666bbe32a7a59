// Package wsstream bridges a task's progress channel onto a websocket
// connection, so a client can watch an install/uninstall task update live
// instead of polling GET /api/pim/tasks/{id}.
package wsstream

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades an HTTP connection to a websocket, accepting any
// origin since the route's handler performs the same JWT check as the
// REST API before upgrading.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscriber looks up a task by id and returns a channel of its progress
// messages, mirroring pim.Facade.Subscribe.
type Subscriber interface {
	Subscribe(taskID string) <-chan string
	GetTask(taskID string) (TaskSnapshot, bool)
}

// TaskSnapshot is the minimal task state pushed alongside each message.
type TaskSnapshot struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

const writeWait = 10 * time.Second

// HandleTaskStream upgrades the request and streams every message the
// task manager broadcasts for taskID until the task reaches a terminal
// state or the client disconnects.
func HandleTaskStream(sub Subscriber, taskID string, w http.ResponseWriter, r *http.Request) {
	if _, ok := sub.GetTask(taskID); !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("wsstream upgrade:", err)
		return
	}
	defer conn.Close()

	ch := sub.Subscribe(taskID)

	if snap, ok := sub.GetTask(taskID); ok {
		if err := writeSnapshot(conn, snap); err != nil {
			return
		}
		if isTerminal(snap.Status) {
			return
		}
	}

	// A terminal transition that appends no message is not broadcast, so the
	// task is also re-checked on a ticker.
	poll := time.NewTicker(time.Second)
	defer poll.Stop()
	for {
		polled := false
		select {
		case <-ch:
		case <-poll.C:
			polled = true
		}
		snap, ok := sub.GetTask(taskID)
		if !ok {
			return
		}
		if polled && !isTerminal(snap.Status) {
			continue
		}
		if err := writeSnapshot(conn, snap); err != nil {
			log.Print("wsstream write:", err)
			return
		}
		if isTerminal(snap.Status) {
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap TaskSnapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}

func isTerminal(status string) bool {
	return status == "completed" || status == "failed"
}

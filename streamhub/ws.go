package streamhub

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ServeTask accepts a WebSocket connection, attaches it to taskID, and
// streams that task's messages until the task completes or the
// connection drops. It never starts a generator itself — callers must
// have already called Hub.Start (directly, or via an HTTP handler that
// starts the task before upgrading the connection) and pass the same
// taskID here.
//
// Reconnection is idempotent: attaching twice to the same taskID
// replays the accumulated history to each connection and then
// continues streaming live messages to both, without running the
// generator again.
func (h *Hub) ServeTask(w http.ResponseWriter, r *http.Request, taskID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	task, ok := h.Attach(taskID)
	if !ok {
		writeFrame(r.Context(), conn, ErrorMessage(taskID, "unknown_task", "no task with this id is running or has completed", ""))
		conn.Close(websocket.StatusNormalClosure, "unknown task")
		return
	}

	replay, live, detach := task.Subscribe()
	defer detach()

	ctx := r.Context()
	for _, msg := range replay {
		if err := writeFrame(ctx, conn, msg); err != nil {
			return
		}
	}
	if task.State() == string(taskCompleted) {
		conn.Close(websocket.StatusNormalClosure, "task already completed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-live:
			if !ok {
				return
			}
			if err := writeFrame(ctx, conn, msg); err != nil {
				return
			}
			if msg.Kind == KindComplete || msg.Kind == KindError {
				conn.Close(websocket.StatusNormalClosure, "task complete")
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

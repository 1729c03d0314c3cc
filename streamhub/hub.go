// Package streamhub fans a single task's progress out to any number of
// WebSocket clients keyed by task ID, grounded on the teacher's
// agent/streaming.BidirectionalStream and StreamManager. Unlike the
// teacher's stream, a task here is not owned by a connection: it runs
// to completion in the background regardless of whether a client is
// attached, and a client that reconnects mid-task replays the history
// buffer instead of restarting the generator.
package streamhub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// taskState is a Task's lifecycle state.
type taskState string

const (
	taskRunning   taskState = "running"
	taskCompleted taskState = "completed"
)

// Task is one running or finished streamed operation. All state is
// protected by mu; emit and Subscribe may be called concurrently from
// the generator goroutine and from attaching/detaching clients.
type Task struct {
	id      string
	mu      sync.Mutex
	history []Message
	subs    map[int]chan Message
	nextSub int
	state   taskState
	cancel  context.CancelFunc
	started time.Time
}

func newTask(id string, cancel context.CancelFunc) *Task {
	return &Task{id: id, subs: make(map[int]chan Message), state: taskRunning, cancel: cancel, started: time.Now()}
}

// emit appends msg to the history and fans it out to every currently
// attached subscriber. A slow subscriber is dropped rather than
// allowed to block the generator.
func (t *Task) emit(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, msg)
	if msg.Kind == KindComplete || msg.Kind == KindError || msg.Kind == KindResearchComplete || msg.Kind == KindResearchError {
		t.state = taskCompleted
	}
	for id, ch := range t.subs {
		select {
		case ch <- msg:
		default:
			delete(t.subs, id)
			close(ch)
		}
	}
}

// Subscribe attaches a new listener to the task, returning a replay of
// everything emitted so far plus a channel for messages emitted from
// now on. detach must be called once the caller stops reading.
func (t *Task) Subscribe() (replay []Message, live <-chan Message, detach func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	replay = make([]Message, len(t.history))
	copy(replay, t.history)

	ch := make(chan Message, 32)
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	detach = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existing, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(existing)
		}
	}
	return replay, ch, detach
}

// State reports whether the task has reached a terminal message.
func (t *Task) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.state)
}

// Generator is the work a Hub runs for a task. It must call emit for
// every message it wants streamed out, including exactly one terminal
// complete/error message, and must keep running to full completion
// even if ctx is not canceled by a disconnecting client — the Hub
// never cancels ctx on client detach, only on Hub.Cancel.
type Generator func(ctx context.Context, emit func(Message))

// Hub tracks tasks by ID and lets any number of WebSocket handlers
// attach to the same running or finished task.
type Hub struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	logger *zap.Logger
}

// New constructs a Hub.
func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{tasks: make(map[string]*Task), logger: logger.With(zap.String("component", "streamhub"))}
}

// Start launches gen for taskID in the background. If a task with this
// ID is already running or already finished, Start is a no-op and
// returns the existing task — a reconnecting client must never cause
// the generator to run twice for the same task ID.
func (h *Hub) Start(taskID string, gen Generator) *Task {
	h.mu.Lock()
	if existing, ok := h.tasks[taskID]; ok {
		h.mu.Unlock()
		return existing
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := newTask(taskID, cancel)
	h.tasks[taskID] = task
	h.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("task generator panicked", zap.String("task_id", taskID), zap.Any("recover", r))
				task.emit(ErrorMessage(taskID, "internal_error", "task generator panicked", ""))
			}
		}()
		gen(ctx, task.emit)
	}()

	return task
}

// Attach returns the task for taskID, if one exists — whether running
// or already completed. Callers use this to decide whether to
// subscribe (running) or to immediately replay history and report
// completion (completed) without restarting any work.
func (h *Hub) Attach(taskID string) (*Task, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	task, ok := h.tasks[taskID]
	return task, ok
}

// Cancel stops a task's generator context. Use sparingly — tasks are
// meant to run to completion independent of client attachment; this
// exists for operator-initiated aborts, not for client disconnects.
func (h *Hub) Cancel(taskID string) {
	h.mu.Lock()
	task, ok := h.tasks[taskID]
	h.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// Evict drops a finished task from the hub so its history buffer can
// be garbage collected. Callers should only evict tasks whose
// State() is "completed".
func (h *Hub) Evict(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tasks, taskID)
}

package streamhub

import "time"

// Kind identifies the shape of a streamed message, mirroring the
// message kinds a client's WebSocket handler switches on.
type Kind string

const (
	KindStage        Kind = "stage"
	KindData         Kind = "data"
	KindPanelPreview Kind = "panel_preview"
	KindError        Kind = "error"
	KindComplete     Kind = "complete"

	// Research-only kinds, emitted one-for-one from research.Event.Type.
	KindResearchStart    Kind = "research_start"
	KindResearchStep     Kind = "research_step"
	KindResearchPanel    Kind = "research_panel"
	KindResearchAnalysis Kind = "research_analysis"
	KindResearchComplete Kind = "research_complete"
	KindResearchError    Kind = "research_error"
)

// Message is one frame sent down a task's stream. Only the fields
// relevant to Kind are populated; the rest are omitted from the wire
// encoding.
type Message struct {
	Kind         Kind      `json:"kind"`
	TaskID       string    `json:"task_id"`
	Stage        string    `json:"stage,omitempty"`
	Message      string    `json:"message,omitempty"`
	Progress     *float64  `json:"progress,omitempty"`
	Data         any       `json:"data,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Success      bool      `json:"success,omitempty"`
	TotalTimeMS  *int64    `json:"total_time_ms,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// StageMessage reports progress through the pipeline.
func StageMessage(taskID, stage, message string, progress *float64) Message {
	return Message{Kind: KindStage, TaskID: taskID, Stage: stage, Message: message, Progress: progress, Timestamp: time.Now()}
}

// DataMessage carries a stage's produced data.
func DataMessage(taskID, stage string, data any) Message {
	return Message{Kind: KindData, TaskID: taskID, Stage: stage, Data: data, Timestamp: time.Now()}
}

// PanelPreviewMessage carries an early preview of one research panel's
// result, before the final report is synthesized.
func PanelPreviewMessage(taskID string, data any) Message {
	return Message{Kind: KindPanelPreview, TaskID: taskID, Data: data, Timestamp: time.Now()}
}

// ErrorMessage reports a terminal failure for the task.
func ErrorMessage(taskID, code, message, stage string) Message {
	return Message{Kind: KindError, TaskID: taskID, ErrorCode: code, ErrorMessage: message, Stage: stage, Timestamp: time.Now()}
}

// CompleteMessage reports the task's terminal success state.
func CompleteMessage(taskID string, success bool, message string, totalTime time.Duration) Message {
	ms := totalTime.Milliseconds()
	return Message{Kind: KindComplete, TaskID: taskID, Success: success, Message: message, TotalTimeMS: &ms, Timestamp: time.Now()}
}

// FromResearchEvent converts a research.Event into the matching
// research_* wire message kind, passing the event payload through
// unchanged as Data.
func FromResearchEvent(eventType, taskID string, payload any) Message {
	kind := Kind(eventType)
	switch kind {
	case KindResearchStart, KindResearchStep, KindResearchPanel, KindResearchAnalysis, KindResearchComplete, KindResearchError:
	default:
		kind = KindData
	}
	return Message{Kind: kind, TaskID: taskID, Data: payload, Timestamp: time.Now()}
}

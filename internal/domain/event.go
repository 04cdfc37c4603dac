package domain

import (
	"time"
)

// Статусы событий WorkflowUpdate.
//
// Для выполнения узлов используются in_progress/completed/failed,
// для жизненного цикла workflow — created/updated/deleted.
const (
	EventStatusCreated    = "created"
	EventStatusUpdated    = "updated"
	EventStatusDeleted    = "deleted"
	EventStatusInProgress = "in_progress"
	EventStatusCompleted  = "completed"
	EventStatusFailed     = "failed"
)

// WorkflowUpdate — событие изменения состояния, доставляемое живым
// подписчикам через Broadcaster.
//
// Транзиентный тип: существует только на проводе, не персистится.
// Подписчики восстанавливают порядок по (workflowId, nodeId, timestamp) —
// глобальный порядок между разными узлами не гарантируется.
type WorkflowUpdate struct {
	// WorkflowID — workflow, к которому относится событие.
	WorkflowID int64 `json:"workflowId"`

	// NodeID — узел события; nil для событий уровня workflow.
	NodeID *int64 `json:"nodeId"`

	// Status — метка статуса (created/updated/deleted/in_progress/...).
	Status string `json:"status"`

	// Timestamp — время события в ISO 8601.
	Timestamp string `json:"timestamp"`

	// WorkflowName — имя workflow (для наблюдаемости).
	WorkflowName string `json:"workflowName,omitempty"`

	// NodeName — имя узла.
	NodeName string `json:"nodeName,omitempty"`

	// Message — человекочитаемое описание.
	Message string `json:"message,omitempty"`
}

// NewWorkflowUpdate создаёт событие с текущим временем.
func NewWorkflowUpdate(workflowID int64, nodeID *int64, status string) WorkflowUpdate {
	return WorkflowUpdate{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
}

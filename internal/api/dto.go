package api

import (
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

// Workflow DTOs

// NodeRequest — узел в запросе создания/обновления workflow.
type NodeRequest struct {
	Type          string         `json:"type"`
	Name          string         `json:"name,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	NextNodeID    *int64         `json:"nextNodeId,omitempty"`
}

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name       string         `json:"name"`
	Definition map[string]any `json:"definition,omitempty"`
	Nodes      []NodeRequest  `json:"nodes,omitempty"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
// Непереданные поля не меняются; непустой nodes заменяет набор узлов.
type UpdateWorkflowRequest struct {
	Name       *string         `json:"name,omitempty"`
	Definition *map[string]any `json:"definition,omitempty"`
	Status     *string         `json:"status,omitempty"`
	Nodes      []NodeRequest   `json:"nodes,omitempty"`
}

// NodeResponse — ответ с узлом.
type NodeResponse struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Name          string         `json:"name,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	NextNodeID    *int64         `json:"nextNodeId,omitempty"`
	Position      int            `json:"position"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Definition map[string]any `json:"definition,omitempty"`
	Status     string         `json:"status"`
	Nodes      []NodeResponse `json:"nodes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf domain.Workflow) WorkflowResponse {
	nodes := make([]NodeResponse, len(wf.Nodes))
	for i, node := range wf.Nodes {
		nodes[i] = NodeResponse{
			ID:            node.ID,
			Type:          string(node.Type),
			Name:          node.Name,
			Configuration: node.Configuration,
			NextNodeID:    node.NextNodeID,
			Position:      node.Position,
			CreatedAt:     node.CreatedAt,
			UpdatedAt:     node.UpdatedAt,
		}
	}

	return WorkflowResponse{
		ID:         wf.ID,
		Name:       wf.Name,
		Definition: wf.Definition,
		Status:     string(wf.Status),
		Nodes:      nodes,
		CreatedAt:  wf.CreatedAt,
		UpdatedAt:  wf.UpdatedAt,
	}
}

// nodesFromRequest конвертирует узлы запроса в доменные.
func nodesFromRequest(nodes []NodeRequest) []domain.Node {
	result := make([]domain.Node, len(nodes))
	for i, node := range nodes {
		result[i] = domain.Node{
			Type:          domain.NodeType(node.Type),
			Name:          node.Name,
			Configuration: node.Configuration,
			NextNodeID:    node.NextNodeID,
		}
	}
	return result
}

// Execution DTOs

// ExecuteRequest — запрос на выполнение узла.
type ExecuteRequest struct {
	NodeID int64 `json:"nodeId"`
}

// ExecuteParallelRequest — запрос на параллельное выполнение.
type ExecuteParallelRequest struct {
	NodeIDs []int64 `json:"nodeIds"`
}

// ExecuteResponse — подтверждение постановки в очередь.
type ExecuteResponse struct {
	WorkflowID int64   `json:"workflowId"`
	NodeIDs    []int64 `json:"nodeIds"`
	Message    string  `json:"message"`
}

// ExecutionStateResponse — ответ с записью выполнения.
type ExecutionStateResponse struct {
	ID          int64      `json:"id"`
	WorkflowID  int64      `json:"workflowId"`
	NodeID      int64      `json:"nodeId"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StateFromDomain конвертирует domain.ExecutionState в ответ.
func StateFromDomain(state domain.ExecutionState) ExecutionStateResponse {
	return ExecutionStateResponse{
		ID:          state.ID,
		WorkflowID:  state.WorkflowID,
		NodeID:      state.NodeID,
		Status:      string(state.Status),
		StartedAt:   state.StartedAt,
		CompletedAt: state.CompletedAt,
	}
}

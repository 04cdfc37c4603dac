package api

import (
	"encoding/json"
	"net/http"
)

// ExecuteNode ставит выполнение узла в очередь.
// POST /api/v1/workflows/{id}/execute
func (h *Handler) ExecuteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if _, found := wf.FindNode(req.NodeID); !found {
		NotFound(w, "node not found")
		return
	}

	if err := h.enqueuer.PublishExecute(r.Context(), id, req.NodeID, 0); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: ExecuteResponse{
		WorkflowID: id,
		NodeIDs:    []int64{req.NodeID},
		Message:    "execution enqueued",
	}})
}

// ExecuteNextNode ставит в очередь позиционного преемника узла.
// Для последнего узла — no-op с пустым списком nodeIds.
// POST /api/v1/workflows/{id}/execute-next
func (h *Handler) ExecuteNextNode(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if _, found := wf.FindNode(req.NodeID); !found {
		NotFound(w, "node not found")
		return
	}

	next, found := wf.NodeAfter(req.NodeID)
	if !found {
		Success(w, ExecuteResponse{
			WorkflowID: id,
			NodeIDs:    []int64{},
			Message:    "no next node to execute",
		})
		return
	}

	if err := h.enqueuer.PublishExecute(r.Context(), id, next.ID, 0); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: ExecuteResponse{
		WorkflowID: id,
		NodeIDs:    []int64{next.ID},
		Message:    "execution enqueued",
	}})
}

// ExecuteParallelNodes ставит в очередь несколько веток выполнения.
// Каждый узел — отдельный job, ветки выполняются конкурентно worker'ами.
// POST /api/v1/workflows/{id}/execute-parallel
func (h *Handler) ExecuteParallelNodes(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	var req ExecuteParallelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if len(req.NodeIDs) == 0 {
		BadRequest(w, "nodeIds is required")
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	for _, nodeID := range req.NodeIDs {
		if _, found := wf.FindNode(nodeID); !found {
			NotFound(w, "node not found")
			return
		}
	}

	for _, nodeID := range req.NodeIDs {
		if err := h.enqueuer.PublishExecute(r.Context(), id, nodeID, 0); err != nil {
			InternalError(w, h.logger, err)
			return
		}
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: ExecuteResponse{
		WorkflowID: id,
		NodeIDs:    req.NodeIDs,
		Message:    "execution enqueued",
	}})
}

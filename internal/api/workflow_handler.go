package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// ListWorkflows возвращает страницу workflows.
// GET /api/v1/workflows?page=1&limit=10
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	workflows, err := h.workflowRepo.List(r.Context(), page, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт новый workflow с узлами.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if msg, ok := validateNodes(req.Nodes); !ok {
		BadRequest(w, msg)
		return
	}

	wf := &domain.Workflow{
		Name:       req.Name,
		Definition: req.Definition,
		Status:     domain.WorkflowStatusActive,
		Nodes:      nodesFromRequest(req.Nodes),
	}

	if err := h.workflowRepo.Create(r.Context(), wf); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			Conflict(w, "workflow name already exists")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.broadcastLifecycle(wf, domain.EventStatusCreated)
	Created(w, WorkflowFromDomain(*wf))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// UpdateWorkflow обновляет workflow.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if msg, ok := validateNodes(req.Nodes); !ok {
		BadRequest(w, msg)
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			BadRequest(w, "name cannot be empty")
			return
		}
		wf.Name = *req.Name
	}
	if req.Definition != nil {
		wf.Definition = *req.Definition
	}
	if req.Status != nil {
		status := domain.WorkflowStatus(*req.Status)
		switch status {
		case domain.WorkflowStatusActive, domain.WorkflowStatusPaused, domain.WorkflowStatusCompleted:
			wf.Status = status
		default:
			BadRequest(w, "invalid status")
			return
		}
	}
	if len(req.Nodes) > 0 {
		wf.Nodes = nodesFromRequest(req.Nodes)
	} else {
		// Пустой nodes в запросе не трогает существующий набор
		wf.Nodes = nil
	}

	if err := h.workflowRepo.Update(r.Context(), wf); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			Conflict(w, "workflow name already exists")
			return
		}
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	updated, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	h.broadcastLifecycle(updated, domain.EventStatusUpdated)
	Success(w, WorkflowFromDomain(*updated))
}

// DeleteWorkflow удаляет workflow вместе с узлами и execution states.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if err := h.workflowRepo.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	h.broadcastLifecycle(wf, domain.EventStatusDeleted)
	NoContent(w)
}

// ListExecutionStates возвращает записи выполнения workflow.
// GET /api/v1/workflows/{id}/states
func (h *Handler) ListExecutionStates(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	if _, err := h.workflowRepo.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	states, err := h.stateRepo.ListByWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionStateResponse, len(states))
	for i, state := range states {
		result[i] = StateFromDomain(state)
	}

	List(w, result, len(result))
}

// workflowID извлекает и валидирует {id} из пути.
func workflowID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(w, "invalid workflow id")
		return 0, false
	}
	return id, true
}

// validateNodes проверяет типы узлов запроса.
func validateNodes(nodes []NodeRequest) (string, bool) {
	for _, node := range nodes {
		if !domain.NodeType(node.Type).Valid() {
			return "invalid node type: " + node.Type, false
		}
	}
	return "", true
}

// broadcastLifecycle рассылает событие жизненного цикла workflow.
func (h *Handler) broadcastLifecycle(wf *domain.Workflow, status string) {
	update := domain.NewWorkflowUpdate(wf.ID, nil, status)
	update.WorkflowName = wf.Name
	h.broadcaster.Broadcast(update)
}

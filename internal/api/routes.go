package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("PUT /api/v1/workflows/{id}", chain(http.HandlerFunc(h.UpdateWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))

	// Execution
	mux.Handle("POST /api/v1/workflows/{id}/execute", chain(http.HandlerFunc(h.ExecuteNode)))
	mux.Handle("POST /api/v1/workflows/{id}/execute-next", chain(http.HandlerFunc(h.ExecuteNextNode)))
	mux.Handle("POST /api/v1/workflows/{id}/execute-parallel", chain(http.HandlerFunc(h.ExecuteParallelNodes)))

	// Execution states
	mux.Handle("GET /api/v1/workflows/{id}/states", chain(http.HandlerFunc(h.ListExecutionStates)))
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// NodeResponse — узел из API.
type NodeResponse struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Name          string         `json:"name,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	NextNodeID    *int64         `json:"nextNodeId,omitempty"`
	Position      int            `json:"position"`
	CreatedAt     string         `json:"created_at"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Definition map[string]any `json:"definition,omitempty"`
	Status     string         `json:"status"`
	Nodes      []NodeResponse `json:"nodes"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

// ExecuteResponse — подтверждение постановки в очередь.
type ExecuteResponse struct {
	WorkflowID int64   `json:"workflowId"`
	NodeIDs    []int64 `json:"nodeIds"`
	Message    string  `json:"message"`
}

// ExecutionStateResponse — запись выполнения из API.
type ExecutionStateResponse struct {
	ID          int64  `json:"id"`
	WorkflowID  int64  `json:"workflowId"`
	NodeID      int64  `json:"nodeId"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// --- Request types ---

// NodeRequest — узел в запросе создания workflow.
type NodeRequest struct {
	Type          string         `json:"type"`
	Name          string         `json:"name,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	NextNodeID    *int64         `json:"nextNodeId,omitempty"`
}

// CreateWorkflowRequest — создание workflow.
type CreateWorkflowRequest struct {
	Name       string         `json:"name"`
	Definition map[string]any `json:"definition,omitempty"`
	Nodes      []NodeRequest  `json:"nodes,omitempty"`
}

// UpdateWorkflowRequest — обновление workflow.
type UpdateWorkflowRequest struct {
	Name   *string       `json:"name,omitempty"`
	Status *string       `json:"status,omitempty"`
	Nodes  []NodeRequest `json:"nodes,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Cascade API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает страницу workflows.
func (c *Client) ListWorkflows(page, limit int) ([]WorkflowResponse, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", params, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт новый workflow.
func (c *Client) CreateWorkflow(req CreateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", req, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id int64) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get(workflowPath(id), &wf)
	return &wf, err
}

// UpdateWorkflow обновляет workflow.
func (c *Client) UpdateWorkflow(id int64, req UpdateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.put(workflowPath(id), req, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id int64) error {
	return c.delete(workflowPath(id))
}

// --- Execution ---

// ExecuteNode ставит выполнение узла в очередь.
func (c *Client) ExecuteNode(workflowID, nodeID int64) (*ExecuteResponse, error) {
	body := map[string]int64{"nodeId": nodeID}
	var result ExecuteResponse
	err := c.post(workflowPath(workflowID)+"/execute", body, &result)
	return &result, err
}

// ExecuteNextNode ставит в очередь позиционного преемника узла.
func (c *Client) ExecuteNextNode(workflowID, nodeID int64) (*ExecuteResponse, error) {
	body := map[string]int64{"nodeId": nodeID}
	var result ExecuteResponse
	err := c.post(workflowPath(workflowID)+"/execute-next", body, &result)
	return &result, err
}

// ExecuteParallelNodes ставит в очередь несколько веток.
func (c *Client) ExecuteParallelNodes(workflowID int64, nodeIDs []int64) (*ExecuteResponse, error) {
	body := map[string][]int64{"nodeIds": nodeIDs}
	var result ExecuteResponse
	err := c.post(workflowPath(workflowID)+"/execute-parallel", body, &result)
	return &result, err
}

// ListExecutionStates возвращает записи выполнения workflow.
func (c *Client) ListExecutionStates(workflowID int64) ([]ExecutionStateResponse, error) {
	var states []ExecutionStateResponse
	err := c.list(workflowPath(workflowID)+"/states", nil, &states)
	return states, err
}

func workflowPath(id int64) string {
	return "/api/v1/workflows/" + strconv.FormatInt(id, 10)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

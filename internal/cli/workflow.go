package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowUpdateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowStatesCmd(clientFn, outputFn),
	)

	return cmd
}

func workflowRow(wf WorkflowResponse) []string {
	return []string{
		strconv.FormatInt(wf.ID, 10),
		wf.Name,
		wf.Status,
		strconv.Itoa(len(wf.Nodes)),
		wf.CreatedAt,
	}
}

var workflowHeaders = []string{"ID", "NAME", "STATUS", "NODES", "CREATED"}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows(page, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = workflowRow(wf)
			}

			out.Print(workflowHeaders, rows, workflows)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 10, "Page size")

	return cmd
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var nodesFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new workflow",
		Long: `Create a new workflow, optionally with nodes from a JSON file.

The nodes file holds an array of node objects:
  [{"type": "start", "name": "begin"},
   {"type": "wait", "configuration": {"delay": 500}},
   {"type": "end"}]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateWorkflowRequest{Name: name}

			if nodesFile != "" {
				data, err := os.ReadFile(nodesFile)
				if err != nil {
					return fmt.Errorf("read nodes file: %w", err)
				}
				if err := json.Unmarshal(data, &req.Nodes); err != nil {
					return fmt.Errorf("parse nodes file: %w", err)
				}
			}

			wf, err := client.CreateWorkflow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %d", wf.ID))
			out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name (required)")
	cmd.Flags().StringVar(&nodesFile, "nodes", "", "Path to JSON file with nodes")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow details with nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			wf, err := client.GetWorkflow(id)
			if err != nil {
				return err
			}

			headers := []string{"NODE", "TYPE", "NAME", "NEXT", "POSITION"}
			rows := make([][]string, len(wf.Nodes))
			for i, node := range wf.Nodes {
				next := "-"
				if node.NextNodeID != nil {
					next = strconv.FormatInt(*node.NextNodeID, 10)
				}
				rows[i] = []string{
					strconv.FormatInt(node.ID, 10),
					node.Type,
					node.Name,
					next,
					strconv.Itoa(node.Position),
				}
			}

			out.Success(fmt.Sprintf("Workflow %d (%s) — %s", wf.ID, wf.Name, wf.Status))
			out.Print(headers, rows, wf)
			return nil
		},
	}
}

func newWorkflowUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, status, nodesFile string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var req UpdateWorkflowRequest
			if name != "" {
				req.Name = &name
			}
			if status != "" {
				req.Status = &status
			}
			if nodesFile != "" {
				data, err := os.ReadFile(nodesFile)
				if err != nil {
					return fmt.Errorf("read nodes file: %w", err)
				}
				if err := json.Unmarshal(data, &req.Nodes); err != nil {
					return fmt.Errorf("parse nodes file: %w", err)
				}
			}

			wf, err := client.UpdateWorkflow(id, req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow updated: %d", wf.ID))
			out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New workflow name")
	cmd.Flags().StringVar(&status, "status", "", "New status (active|paused|completed)")
	cmd.Flags().StringVar(&nodesFile, "nodes", "", "Path to JSON file replacing the node set")

	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow with its nodes and execution states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := client.DeleteWorkflow(id); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow deleted: %d", id))
			return nil
		},
	}
}

func newWorkflowStatesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "states ID",
		Short: "List execution states of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			states, err := client.ListExecutionStates(id)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NODE", "STATUS", "STARTED", "COMPLETED"}
			rows := make([][]string, len(states))
			for i, state := range states {
				completed := "-"
				if state.CompletedAt != "" {
					completed = state.CompletedAt
				}
				rows[i] = []string{
					strconv.FormatInt(state.ID, 10),
					strconv.FormatInt(state.NodeID, 10),
					state.Status,
					state.StartedAt,
					completed,
				}
			}

			out.Print(headers, rows, states)
			return nil
		},
	}
}

// parseID разбирает числовой ID из аргумента команды.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

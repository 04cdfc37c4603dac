package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewExecuteCmd создаёт группу команд запуска выполнения.
func NewExecuteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Trigger workflow execution",
	}

	cmd.AddCommand(
		newExecuteNodeCmd(clientFn, outputFn),
		newExecuteNextCmd(clientFn, outputFn),
		newExecuteParallelCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecuteNodeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "node WORKFLOW_ID NODE_ID",
		Short: "Execute a node and its successor chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflowID, nodeID, err := parseIDPair(args)
			if err != nil {
				return err
			}

			result, err := client.ExecuteNode(workflowID, nodeID)
			if err != nil {
				return err
			}

			out.Success(result.Message)
			out.JSON(result)
			return nil
		},
	}
}

func newExecuteNextCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "next WORKFLOW_ID NODE_ID",
		Short: "Execute the positional successor of a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflowID, nodeID, err := parseIDPair(args)
			if err != nil {
				return err
			}

			result, err := client.ExecuteNextNode(workflowID, nodeID)
			if err != nil {
				return err
			}

			out.Success(result.Message)
			out.JSON(result)
			return nil
		},
	}
}

func newExecuteParallelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "parallel WORKFLOW_ID NODE_ID[,NODE_ID...]",
		Short: "Execute several branches concurrently",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflowID, err := parseID(args[0])
			if err != nil {
				return err
			}

			parts := strings.Split(args[1], ",")
			nodeIDs := make([]int64, 0, len(parts))
			for _, part := range parts {
				nodeID, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid node id %q", part)
				}
				nodeIDs = append(nodeIDs, nodeID)
			}

			result, err := client.ExecuteParallelNodes(workflowID, nodeIDs)
			if err != nil {
				return err
			}

			out.Success(result.Message)
			out.JSON(result)
			return nil
		},
	}
}

// parseIDPair разбирает аргументы WORKFLOW_ID NODE_ID.
func parseIDPair(args []string) (int64, int64, error) {
	workflowID, err := parseID(args[0])
	if err != nil {
		return 0, 0, err
	}
	nodeID, err := parseID(args[1])
	if err != nil {
		return 0, 0, err
	}
	return workflowID, nodeID, nil
}

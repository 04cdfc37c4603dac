package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// watchEvent — событие workflow-update из потока broadcaster'а.
type watchEvent struct {
	Type string `json:"type"`
	Data struct {
		WorkflowID   int64  `json:"workflowId"`
		NodeID       *int64 `json:"nodeId"`
		Status       string `json:"status"`
		Timestamp    string `json:"timestamp"`
		WorkflowName string `json:"workflowName,omitempty"`
		NodeName     string `json:"nodeName,omitempty"`
		Message      string `json:"message,omitempty"`
	} `json:"data"`
}

// NewWatchCmd создаёт команду потокового чтения событий.
func NewWatchCmd(apiURLFn func() string, outputFn func() *Output) *cobra.Command {
	var workflowID int64
	var token string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live workflow events",
		Long: `Connect to the event broadcaster and print workflow updates as
they happen. The stream carries all workflows; --workflow filters
client-side. Interrupt with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wsURL := websocketURL(apiURLFn())
			header := http.Header{}
			if token != "" {
				header.Set("Authorization", "Bearer "+token)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err != nil {
				if resp != nil && resp.StatusCode == http.StatusUnauthorized {
					return fmt.Errorf("authentication rejected, check --token")
				}
				return fmt.Errorf("connect to %s: %w", wsURL, err)
			}
			defer conn.Close()

			out.Success("Connected, streaming events (Ctrl+C to stop)")

			// Закрываем соединение по Ctrl+C, ReadMessage вернёт ошибку
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			go func() {
				<-interrupt
				conn.Close()
			}()

			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return nil
				}

				var event watchEvent
				if err := json.Unmarshal(payload, &event); err != nil {
					continue
				}
				if event.Type != "workflow-update" {
					continue
				}
				if workflowID > 0 && event.Data.WorkflowID != workflowID {
					continue
				}

				printEvent(out, event)
			}
		},
	}

	cmd.Flags().Int64Var(&workflowID, "workflow", 0, "Only show events for this workflow ID")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for the event stream")

	return cmd
}

// printEvent выводит одно событие строкой или JSON'ом.
func printEvent(out *Output, event watchEvent) {
	if out.jsonMode {
		out.JSON(event.Data)
		return
	}

	node := "-"
	if event.Data.NodeID != nil {
		node = fmt.Sprintf("%d", *event.Data.NodeID)
		if event.Data.NodeName != "" {
			node += " (" + event.Data.NodeName + ")"
		}
	}

	line := fmt.Sprintf("%s  workflow=%d node=%s status=%s",
		event.Data.Timestamp, event.Data.WorkflowID, node, event.Data.Status)
	if event.Data.Message != "" {
		line += " message=" + event.Data.Message
	}
	fmt.Fprintln(out.w, line)
}

// websocketURL превращает базовый HTTP URL API в адрес event stream.
func websocketURL(apiURL string) string {
	wsURL := apiURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return strings.TrimSuffix(wsURL, "/") + "/ws"
}

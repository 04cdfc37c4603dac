// Cascade CLI — инструмент командной строки для управления
// workflows и запуска выполнения через HTTP API.
//
// Использование:
//
//	cascade [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workflow  Управление workflows
//	execute   Запуск выполнения узлов
//	watch     Поток живых событий
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cascade/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "cascade",
		Short:         "Cascade CLI — workflow execution tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	apiURLFn := func() string { return apiURL }

	rootCmd.AddCommand(
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewExecuteCmd(clientFn, outputFn),
		cli.NewWatchCmd(apiURLFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "memory [run-id]",
		Short: "Show a run's tiered memory state",
		Long:  "Print the run's short-term tail, latest working memory, long-term memory and metrics as JSON.",
		Args:  cobra.ExactArgs(1),
		Run:   runMemory,
	}

	RootCmd.AddCommand(cmd)
}

func runMemory(cmd *cobra.Command, args []string) {
	orch, store, err := openOrchestrator(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	view, err := orch.GetMemory(cmd.Context(), args[0])
	if err != nil {
		exitErr("memory", err)
	}

	b, _ := json.MarshalIndent(view, "", "  ")
	fmt.Println(string(b))
}

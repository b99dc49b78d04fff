package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "Show a run's audit trail",
		Long:  "Print the run's audit events in chronological order, one JSON object per line.",
		Args:  cobra.ExactArgs(1),
		Run:   runEvents,
	}

	RootCmd.AddCommand(cmd)
}

func runEvents(cmd *cobra.Command, args []string) {
	orch, store, err := openOrchestrator(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	events, err := orch.GetEvents(cmd.Context(), args[0])
	if err != nil {
		exitErr("events", err)
	}

	for _, event := range events {
		b, _ := json.Marshal(event)
		fmt.Println(string(b))
	}
}

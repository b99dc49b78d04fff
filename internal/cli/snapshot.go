package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshot [run-id]",
		Short: "Show a run's latest snapshot",
		Long:  "Print the run's most recent compression snapshot as JSON, or nothing when the run has never been compressed.",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshot,
	}

	RootCmd.AddCommand(cmd)
}

func runSnapshot(cmd *cobra.Command, args []string) {
	orch, store, err := openOrchestrator(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	snap, err := orch.GetLatestSnapshot(cmd.Context(), args[0])
	if err != nil {
		exitErr("snapshot", err)
	}
	if snap == nil {
		fmt.Println("no snapshot")
		return
	}

	b, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(b))
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compress [run-id]",
		Short: "Force compression for a run",
		Long:  "Compress the run's transcript into working memory immediately, ignoring the trigger policy.",
		Args:  cobra.ExactArgs(1),
		Run:   runCompress,
	}

	RootCmd.AddCommand(cmd)
}

func runCompress(cmd *cobra.Command, args []string) {
	orch, store, err := openOrchestrator(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	result, err := orch.ForceCompress(cmd.Context(), args[0])
	if err != nil {
		exitErr("compress", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "step [run-id] [message]",
		Short: "Advance a run by one turn",
		Long:  "Feed one user message through the pipeline. Message can be a positional arg or piped via stdin.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runStep,
	}

	RootCmd.AddCommand(cmd)
}

func runStep(cmd *cobra.Command, args []string) {
	runID := args[0]

	var message string
	if len(args) > 1 {
		message = strings.Join(args[1:], " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			message = string(b)
		}
	}
	if strings.TrimSpace(message) == "" {
		exitErr("step", fmt.Errorf("message is required (positional arg or stdin)"))
	}

	orch, store, err := openOrchestrator(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	result, err := orch.Step(cmd.Context(), runID, strings.TrimSpace(message))
	if err != nil {
		exitErr("step", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}

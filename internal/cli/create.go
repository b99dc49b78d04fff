package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macrador/distill/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "create [objective]",
		Short: "Create a new run",
		Long:  "Create a new run with the given objective. Prints the run record as JSON.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCreate,
	}

	cmd.Flags().String("scenario", "C", "Scenario label")
	cmd.Flags().Bool("llm", false, "Use the model-backed provider (requires ANTHROPIC_API_KEY)")
	cmd.Flags().Int("stm-max", types.DefaultSTMMaxMessages, "Short-term memory tail size")
	cmd.Flags().Int("token-threshold", types.DefaultCompressionTokenThreshold, "Baseline token count that triggers compression")
	cmd.Flags().Int("interval", types.DefaultCompressionIntervalSteps, "Compress every N steps (0 disables)")

	RootCmd.AddCommand(cmd)
}

func runCreate(cmd *cobra.Command, args []string) {
	objective := args[0]
	scenario, _ := cmd.Flags().GetString("scenario")
	useLLM, _ := cmd.Flags().GetBool("llm")
	stmMax, _ := cmd.Flags().GetInt("stm-max")
	threshold, _ := cmd.Flags().GetInt("token-threshold")
	interval, _ := cmd.Flags().GetInt("interval")

	orch, store, err := openOrchestrator(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	config := types.RunConfig{
		STMMaxMessages:            stmMax,
		CompressionTokenThreshold: threshold,
		CompressionIntervalSteps:  interval,
		UseLLM:                    useLLM,
		Provider:                  types.DefaultProvider,
		Model:                     modelFlag,
	}

	run, err := orch.CreateRun(cmd.Context(), objective, scenario, &config)
	if err != nil {
		exitErr("create", err)
	}

	b, _ := json.MarshalIndent(run, "", "  ")
	fmt.Println(string(b))
}

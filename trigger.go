package distill

import "github.com/macrador/distill/types"

// ShouldCompress is the pure compression-trigger policy for one turn.
// Compression fires when the baseline transcript cost reaches the token
// threshold, or every CompressionIntervalSteps steps. Step 0 never
// triggers through the interval branch, even when divisible.
func ShouldCompress(config types.RunConfig, stepIndex, baselineTokens int) bool {
	if baselineTokens >= config.CompressionTokenThreshold {
		return true
	}
	interval := config.CompressionIntervalSteps
	if interval > 0 && stepIndex > 0 && stepIndex%interval == 0 {
		return true
	}
	return false
}

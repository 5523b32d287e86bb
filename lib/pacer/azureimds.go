package pacer

import "time"

// azureIMDSLadder is Azure's documented fixed retry schedule for the
// instance metadata service: 0, 2, 6, 14, 30 seconds, holding at 30s
// after that.
var azureIMDSLadder = []time.Duration{
	0,
	2 * time.Second,
	6 * time.Second,
	14 * time.Second,
	30 * time.Second,
}

// AzureIMDS is a Calculator that walks the fixed IMDS backoff ladder by
// ConsecutiveRetries rather than computing anything from SleepTime.
type AzureIMDS struct{}

// NewAzureIMDS returns an AzureIMDS calculator. It takes no options: the
// ladder is fixed by the IMDS service contract.
func NewAzureIMDS() *AzureIMDS { return &AzureIMDS{} }

func (c *AzureIMDS) Calculate(state State) time.Duration {
	idx := state.ConsecutiveRetries
	if idx >= len(azureIMDSLadder) {
		idx = len(azureIMDSLadder) - 1
	}
	return azureIMDSLadder[idx]
}

package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RunArtifactKey(tenantID, runID uuid.UUID) string {
	return fmt.Sprintf("run:artifact:%s:%s", tenantID, runID)
}

// SimulationKey addresses one simulated scenario; scenarioHash must be derived
// from the normalized scenario so equivalent requests share an entry.
func SimulationKey(tenantID, runID uuid.UUID, scenarioHash string) string {
	return fmt.Sprintf("run:simulation:%s:%s:%s", tenantID, runID, scenarioHash)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

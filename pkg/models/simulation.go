package models

// ScenarioEntry scales one column by a bounded factor.
type ScenarioEntry struct {
	TargetColumn       string  `json:"target_column"       validate:"required"`
	ModificationFactor float64 `json:"modification_factor" validate:"required"`
}

// MetricDelta compares one derived metric against baseline.
type MetricDelta struct {
	Original  float64 `json:"original"`
	Simulated float64 `json:"simulated"`
	Delta     float64 `json:"delta"`
}

// SimulationResult is always computed against the true baseline.
type SimulationResult struct {
	Delta    map[string]MetricDelta `json:"delta"`
	Scenario []ScenarioEntry        `json:"scenario"`
	// Unaffected lists scenario columns no derived metric depends on.
	Unaffected []string `json:"unaffected,omitempty"`
}

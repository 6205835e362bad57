package domain

import "time"

// ScopeOnce is the fixed sentinel used as the scope of once-frequency
// semaphores. Centralizing scope derivation here keeps the scoping rule
// from drifting per module.
const ScopeOnce = "once"

// SemaphoreKey derives the persisted key for a (module, frequency) pair.
// PerInstance scopes to the instance id, Once to a fixed sentinel, Always
// to the current boot id (its record is observability only and never gates
// execution).
func SemaphoreKey(module string, freq Frequency, instanceID, bootID string) string {
	switch freq {
	case FrequencyPerInstance:
		return module + "." + instanceID
	case FrequencyAlways:
		return module + "." + bootID
	default:
		return module + "." + ScopeOnce
	}
}

type SemaphoreRecord struct {
	Module  string       `json:"module"`
	Scope   string       `json:"scope"`
	RanAt   time.Time    `json:"ran_at"`
	Outcome ModuleStatus `json:"outcome"`
}

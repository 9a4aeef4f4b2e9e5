// Package worker runs background jobs for Tramline: catalog reloads, edge cache
// warming and health checks, triggered over Pub/Sub or the admin API.
package worker

import (
	"sort"
	"time"
)

// WarmTarget is a stop pair whose candidates are computed ahead of demand so
// their edge options are cached.
type WarmTarget struct {
	// Name is the human-readable name of the target.
	Name string

	// FromStopID and ToStopID are catalog stop ids.
	FromStopID string
	ToStopID   string

	// Priority determines warm order (lower = higher priority).
	Priority int
}

// WarmConfig holds configuration for the cache warm job.
type WarmConfig struct {
	// Targets are the stop pairs to warm.
	// If empty, uses DefaultWarmTargets.
	Targets []WarmTarget

	// Concurrency is the number of concurrent graph queries.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each target.
	// Default: 30 seconds
	Timeout time.Duration

	// K is the number of candidates requested per target (0 uses the graph default).
	K int
}

// DefaultWarmConfig returns the default warm configuration.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		Targets:     DefaultWarmTargets(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// DefaultWarmTargets returns the busiest trunk pairs of the inner Munich network.
func DefaultWarmTargets() []WarmTarget {
	return []WarmTarget{
		{Name: "Hauptbahnhof - Marienplatz", FromStopID: "de:09162:6", ToStopID: "de:09162:2", Priority: 1},
		{Name: "Hauptbahnhof - Odeonsplatz", FromStopID: "de:09162:6", ToStopID: "de:09162:3", Priority: 1},
		{Name: "Hauptbahnhof - Isartor", FromStopID: "de:09162:6", ToStopID: "de:09162:4", Priority: 1},
		{Name: "Sendlinger Tor - Universität", FromStopID: "de:09162:5", ToStopID: "de:09162:7", Priority: 2},
		{Name: "Goetheplatz - Odeonsplatz", FromStopID: "de:09162:8", ToStopID: "de:09162:3", Priority: 2},
		{Name: "Karlsplatz - Max-Weber-Platz", FromStopID: "de:09162:1", ToStopID: "de:09162:10", Priority: 3},
		{Name: "Lehel - Goetheplatz", FromStopID: "de:09162:9", ToStopID: "de:09162:8", Priority: 3},
	}
}

// withDefaults fills zero values.
func (c WarmConfig) withDefaults() WarmConfig {
	def := DefaultWarmConfig()
	if len(c.Targets) == 0 {
		c.Targets = def.Targets
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Ordered returns the targets sorted by priority, keeping the given order within a priority.
func (c WarmConfig) Ordered() []WarmTarget {
	out := append([]WarmTarget(nil), c.Targets...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

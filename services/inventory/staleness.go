package inventory

import (
	"fmt"
	"time"
)

// StalenessConfig holds the culling offsets. All three are durations measured
// forward from a report, not absolute times, so a policy change applies to
// future computations without rewriting stored rows. Once a host's window is
// computed and stored it stays fixed until the next report.
type StalenessConfig struct {
	// StaleOffset is added to the report time to produce the stale timestamp.
	StaleOffset time.Duration
	// WarningOffset is added to the stale timestamp to produce the warning
	// timestamp.
	WarningOffset time.Duration
	// CulledOffset is added to the stale timestamp to produce the culled
	// timestamp. Must exceed WarningOffset.
	CulledOffset time.Duration
}

// DefaultStalenessConfig mirrors the conventional fleet policy: a host goes
// stale 29 hours after its last report, is warned about after a week of
// staleness, and is culled after two weeks.
func DefaultStalenessConfig() StalenessConfig {
	return StalenessConfig{
		StaleOffset:   29 * time.Hour,
		WarningOffset: 7 * 24 * time.Hour,
		CulledOffset:  14 * 24 * time.Hour,
	}
}

// Validate enforces the ordering invariant stale < warning < culled for every
// possible report time.
func (c StalenessConfig) Validate() error {
	if c.StaleOffset <= 0 {
		return fmt.Errorf("stale offset must be positive, got %s", c.StaleOffset)
	}
	if c.WarningOffset <= 0 {
		return fmt.Errorf("warning offset must be positive, got %s", c.WarningOffset)
	}
	if c.CulledOffset <= c.WarningOffset {
		return fmt.Errorf("culled offset %s must exceed warning offset %s", c.CulledOffset, c.WarningOffset)
	}
	return nil
}

// StalenessWindow is the derived triple of timestamps stored on a host.
type StalenessWindow struct {
	Stale        time.Time
	StaleWarning time.Time
	Culled       time.Time
}

// Window computes the staleness window for a report received at reportTime.
func (c StalenessConfig) Window(reportTime time.Time) StalenessWindow {
	stale := reportTime.UTC().Add(c.StaleOffset)
	return StalenessWindow{
		Stale:        stale,
		StaleWarning: stale.Add(c.WarningOffset),
		Culled:       stale.Add(c.CulledOffset),
	}
}

// HostState is the lifecycle classification of a host. It is always derived
// by comparing the clock against the stored window, never persisted.
type HostState string

const (
	HostFresh        HostState = "fresh"
	HostStale        HostState = "stale"
	HostStaleWarning HostState = "stale_warning"
	HostCulled       HostState = "culled"
)

// StateAt classifies the window against now.
func (w StalenessWindow) StateAt(now time.Time) HostState {
	switch {
	case now.Before(w.Stale):
		return HostFresh
	case now.Before(w.StaleWarning):
		return HostStale
	case now.Before(w.Culled):
		return HostStaleWarning
	default:
		return HostCulled
	}
}

package history

import (
	"slices"
	"time"
)

// MarkFlagged records that the station's observation at `at` failed the
// given checks, keyed as domain.CheckKey. Only the newest time per check is
// kept.
func (s *Store) MarkFlagged(station string, at time.Time, checks ...string) {
	if station == "" || len(checks) == 0 {
		return
	}
	sh := s.shardFor(station)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	byCheck := sh.flagged[station]
	if byCheck == nil {
		byCheck = make(map[string]time.Time, len(checks))
		sh.flagged[station] = byCheck
	}
	for _, c := range checks {
		if prev, ok := byCheck[c]; !ok || at.After(prev) {
			byCheck[c] = at
		}
	}
}

// FlaggedChecks returns, sorted, the checks the station failed within window
// of at (in either direction, since neighbors report out of step).
func (s *Store) FlaggedChecks(station string, at time.Time, window time.Duration) []string {
	sh := s.shardFor(station)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var out []string
	for check, ts := range sh.flagged[station] {
		d := at.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d <= window {
			out = append(out, check)
		}
	}
	slices.Sort(out)
	return out
}

// Package history keeps a bounded, per-station rolling window of recent
// observations for each variable.
//
// The store is sharded by station id. Each shard has its own lock, so
// stations on different shards never contend. Callers that ingest
// concurrently must still route every packet for one station through one
// worker; the store preserves per-series order, not cross-packet ordering.
package history

import (
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// ErrInvalidConfig is returned by New for unusable window bounds.
var ErrInvalidConfig = errors.New("invalid history config")

// Config bounds every (station, variable) series. At least one of
// MaxEntries and MaxAge must be set.
type Config struct {
	MaxEntries int           // keep at most this many samples, 0 for no count bound
	MaxAge     time.Duration // drop samples older than newest minus MaxAge, 0 for no age bound
	Shards     int           // lock shards, defaults to 1
}

// Validate rejects negative or absent bounds.
func (c Config) Validate() error {
	switch {
	case c.MaxEntries < 0:
		return fmt.Errorf("%w: max entries %d is negative", ErrInvalidConfig, c.MaxEntries)
	case c.MaxAge < 0:
		return fmt.Errorf("%w: max age %s is negative", ErrInvalidConfig, c.MaxAge)
	case c.MaxEntries == 0 && c.MaxAge == 0:
		return fmt.Errorf("%w: one of max entries or max age is required", ErrInvalidConfig)
	case c.Shards < 0:
		return fmt.Errorf("%w: shard count %d is negative", ErrInvalidConfig, c.Shards)
	}
	return nil
}

type seriesKey struct {
	station  string
	variable domain.Variable
}

type shard struct {
	mu      sync.Mutex
	series  map[seriesKey][]domain.Sample
	flagged map[string]map[string]time.Time // station -> check key -> latest observation flagged
}

func newShard() *shard {
	return &shard{
		series:  make(map[seriesKey][]domain.Sample),
		flagged: make(map[string]map[string]time.Time),
	}
}

// Store is the station history store. It is safe for concurrent use.
type Store struct {
	cfg    Config
	shards []*shard
}

// New validates cfg and returns an empty store.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Shards == 0 {
		cfg.Shards = 1
	}
	s := &Store{cfg: cfg, shards: make([]*shard, cfg.Shards)}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s, nil
}

// Config returns the effective bounds.
func (s *Store) Config() Config { return s.cfg }

// ShardIndex maps a station id onto one of n shards using FNV-1a.
func ShardIndex(station string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(station))
	return int(h.Sum32() % uint32(n))
}

func (s *Store) shardFor(station string) *shard {
	return s.shards[ShardIndex(station, len(s.shards))]
}

// AppendResult describes the effect of one Append.
type AppendResult struct {
	Late    bool // timestamp was earlier than the newest retained sample
	Evicted int  // samples dropped by the window bounds
}

// Append records a sample. A late sample is inserted at its sorted position
// so the series stays ordered by timestamp; it is never dropped for being
// late, though it may be evicted at once if it falls outside the age bound.
func (s *Store) Append(station string, v domain.Variable, ts time.Time, value float64) AppendResult {
	sh := s.shardFor(station)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	key := seriesKey{station, v}
	series := sh.series[key]
	sample := domain.Sample{Timestamp: ts, Value: value}

	var res AppendResult
	if n := len(series); n > 0 && ts.Before(series[n-1].Timestamp) {
		res.Late = true
		i, _ := slices.BinarySearchFunc(series, ts, func(e domain.Sample, t time.Time) int {
			if e.Timestamp.After(t) {
				return 1
			}
			// equal timestamps sort before the new sample
			return -1
		})
		series = slices.Insert(series, i, sample)
	} else {
		series = append(series, sample)
	}

	series, res.Evicted = s.evict(series)
	sh.series[key] = series
	return res
}

func (s *Store) evict(series []domain.Sample) ([]domain.Sample, int) {
	drop := 0
	if s.cfg.MaxEntries > 0 && len(series) > s.cfg.MaxEntries {
		drop = len(series) - s.cfg.MaxEntries
	}
	if s.cfg.MaxAge > 0 && len(series) > 0 {
		cutoff := series[len(series)-1].Timestamp.Add(-s.cfg.MaxAge)
		for drop < len(series) && series[drop].Timestamp.Before(cutoff) {
			drop++
		}
	}
	if drop == 0 {
		return series, 0
	}
	return slices.Delete(series, 0, drop), drop
}

// Query selects the tail of a series. Count keeps the newest Count samples;
// Span keeps samples no older than newest minus Span. Zero fields do not
// constrain. Both may be combined.
type Query struct {
	Count int
	Span  time.Duration
}

// Window returns a copy of the selected samples, oldest first.
func (s *Store) Window(station string, v domain.Variable, q Query) []domain.Sample {
	sh := s.shardFor(station)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	series := sh.series[seriesKey{station, v}]
	start := 0
	if q.Count > 0 && len(series) > q.Count {
		start = len(series) - q.Count
	}
	if q.Span > 0 && len(series) > 0 {
		cutoff := series[len(series)-1].Timestamp.Add(-q.Span)
		for start < len(series) && series[start].Timestamp.Before(cutoff) {
			start++
		}
	}
	return slices.Clone(series[start:])
}

// Latest returns the newest sample for the series.
func (s *Store) Latest(station string, v domain.Variable) (domain.Sample, bool) {
	w := s.Window(station, v, Query{Count: 1})
	if len(w) == 0 {
		return domain.Sample{}, false
	}
	return w[0], true
}

// Len returns the number of retained samples for the series.
func (s *Store) Len(station string, v domain.Variable) int {
	sh := s.shardFor(station)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.series[seriesKey{station, v}])
}

// Stations returns the ids with at least one retained sample, sorted.
func (s *Store) Stations() []string {
	var out []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.series {
			if !slices.Contains(out, key.station) {
				out = append(out, key.station)
			}
		}
		sh.mu.Unlock()
	}
	slices.Sort(out)
	return out
}

// Reset drops all retained state.
func (s *Store) Reset() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.series = make(map[seriesKey][]domain.Sample)
		sh.flagged = make(map[string]map[string]time.Time)
		sh.mu.Unlock()
	}
}

package engines

import (
	"math/bits"
	"time"

	"github.com/samber/lo"

	"github.com/wippyai/ceval/protocol"
)

const (
	MinHashMB  = 16
	MaxMultiPV = 5

	// timedDepth caps the depth of a timed search so time is the binding limit.
	timedDepth = 99
)

// SearchPips are the selectable search durations. Zero means infinite.
var SearchPips = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	90 * time.Second,
	0,
}

// Settings are the user's analysis preferences.
type Settings struct {
	Threads int
	HashMB  int
	MultiPV int
	// SearchTime limits each search. Zero means infinite.
	SearchTime time.Duration
}

// Clamp fits the settings to what info supports.
func (s Settings) Clamp(info Info) Settings {
	s.Threads = lo.Clamp(s.Threads, 1, max(info.MaxThreads, 1))
	s.HashMB = clampHash(s.HashMB, info.MaxHashMB)
	s.MultiPV = lo.Clamp(s.MultiPV, 1, MaxMultiPV)
	s.SearchTime = snapSearchTime(s.SearchTime)
	return s
}

// Work builds the analysis request for a position. An empty fen means the
// variant's start position.
func (s Settings) Work(fen string, moves []string, variant string) *protocol.Work {
	limits := protocol.Limits{Infinite: true}
	if s.SearchTime > 0 {
		limits = protocol.Limits{Depth: timedDepth, MoveTime: s.SearchTime}
	}
	if variant == Standard {
		variant = ""
	}
	return &protocol.Work{
		Variant:    variant,
		InitialFEN: fen,
		Moves:      moves,
		Limits:     limits,
		MultiPV:    s.MultiPV,
		Threads:    s.Threads,
		HashMB:     s.HashMB,
	}
}

// clampHash rounds mb down to a power of two within [MinHashMB, maxMB].
func clampHash(mb, maxMB int) int {
	limit := max(maxMB, MinHashMB)
	mb = lo.Clamp(mb, MinHashMB, limit)
	return 1 << (bits.Len(uint(mb)) - 1)
}

// snapSearchTime rounds d up to the nearest pip. Anything past the last
// finite pip is infinite.
func snapSearchTime(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	pip, ok := lo.Find(SearchPips, func(p time.Duration) bool { return p >= d })
	if !ok {
		return 0
	}
	return pip
}

package protocol

import (
	"strconv"
	"strings"
	"time"
)

// Work is one analysis request. It must not be modified after it has been
// passed to Compute.
type Work struct {
	// Variant is the UCI_Variant value, empty for engines without variant support.
	Variant string
	// InitialFEN is the position the move list starts from. Empty means the
	// standard starting position.
	InitialFEN string
	Moves      []string
	Limits     Limits
	MultiPV    int
	Threads    int
	HashMB     int
}

// Limits bounds a search. A zero value means infinite analysis.
type Limits struct {
	Depth    int
	MoveTime time.Duration
	Infinite bool
}

// IsInfinite reports whether the search only ends on an explicit stop.
func (l Limits) IsInfinite() bool {
	return l.Infinite || (l.Depth <= 0 && l.MoveTime <= 0)
}

// String describes the limits the way they are sent, without the go keyword.
func (l Limits) String() string {
	return strings.TrimPrefix(l.command(), "go ")
}

func (l Limits) command() string {
	if l.IsInfinite() {
		return "go infinite"
	}
	parts := []string{"go"}
	if l.Depth > 0 {
		parts = append(parts, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTime > 0 {
		millis := l.MoveTime.Milliseconds()
		if millis < 1 {
			millis = 1
		}
		parts = append(parts, "movetime", strconv.FormatInt(millis, 10))
	}
	return strings.Join(parts, " ")
}

func (w *Work) positionCommand() string {
	var b strings.Builder
	if w.InitialFEN == "" {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(w.InitialFEN)
	}
	if len(w.Moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(w.Moves, " "))
	}
	return b.String()
}

func (w *Work) multiPV() int {
	if w.MultiPV < 1 {
		return 1
	}
	return w.MultiPV
}

// Eval is one search progress report for a single principal variation.
type Eval struct {
	CP       *int
	Mate     *int
	Bound    string
	PV       []string
	MultiPV  int
	Depth    int
	SelDepth int
	Nodes    int64
	NPS      int64
	Millis   int64
}

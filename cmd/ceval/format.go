package main

import (
	"fmt"
	"strings"

	"github.com/wippyai/ceval/protocol"
)

// formatScore renders a score from the side to move's view: pawns with a
// sign, or #N for a mate.
func formatScore(ev protocol.Eval) string {
	var s string
	switch {
	case ev.Mate != nil:
		s = fmt.Sprintf("#%d", *ev.Mate)
	case ev.CP != nil:
		s = fmt.Sprintf("%+.2f", float64(*ev.CP)/100)
	default:
		return "?"
	}
	switch ev.Bound {
	case "lowerbound":
		s += "+"
	case "upperbound":
		s += "-"
	}
	return s
}

func formatEval(ev protocol.Eval) string {
	return fmt.Sprintf("depth %d/%d pv %d score %s nodes %d nps %d %s",
		ev.Depth, ev.SelDepth, ev.MultiPV, formatScore(ev), ev.Nodes, ev.NPS, strings.Join(ev.PV, " "))
}

func formatBytes(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%dB", n)
	case n < unit*unit:
		return fmt.Sprintf("%.1fKB", float64(n)/unit)
	default:
		return fmt.Sprintf("%.1fMB", float64(n)/(unit*unit))
	}
}

// formatHash renders a hash size the way the settings view does.
func formatHash(mb int) string {
	if mb < 1000 {
		return fmt.Sprintf("%dMB", mb)
	}
	return fmt.Sprintf("%dGB", (mb+512)/1024)
}

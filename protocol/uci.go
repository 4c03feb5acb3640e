package protocol

import (
	"strconv"
	"strings"
)

func parseBestMoveLine(line string) (bestMove string, ponder string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", "", false
	}
	bestMove = fields[1]
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			ponder = fields[i+1]
			break
		}
	}
	return bestMove, ponder, true
}

// parseInfoLine extracts an Eval from an info line. Lines without a score
// (currmove, string, hashfull-only reports) are not evaluations.
func parseInfoLine(line string) (Eval, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return Eval{}, false
	}

	ev := Eval{MultiPV: 1}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			return Eval{}, false
		case "multipv":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil && n > 0 {
					ev.MultiPV = n
				}
				i++
			}
		case "depth":
			if i+1 < len(fields) {
				ev.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "seldepth":
			if i+1 < len(fields) {
				ev.SelDepth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				ev.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "nps":
			if i+1 < len(fields) {
				ev.NPS, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "time":
			if i+1 < len(fields) {
				ev.Millis, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "score":
			if i+2 < len(fields) {
				if value, err := strconv.Atoi(fields[i+2]); err == nil {
					switch fields[i+1] {
					case "cp":
						ev.CP = intPtr(value)
					case "mate":
						ev.Mate = intPtr(value)
					}
				}
				i += 2
			}
		case "lowerbound", "upperbound":
			ev.Bound = fields[i]
		case "pv":
			if i+1 < len(fields) {
				ev.PV = append([]string(nil), fields[i+1:]...)
			}
			i = len(fields)
		}
	}

	if ev.CP == nil && ev.Mate == nil {
		return Eval{}, false
	}
	return ev, true
}

func intPtr(value int) *int {
	return &value
}

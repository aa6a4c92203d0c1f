package analysis

import (
	"strconv"
	"strings"
)

// Info is one parsed "info" line from the engine's search output.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Score    Score
	NPS      int64
	Nodes    int64
	TimeMS   int64
	PV       []string
	HasScore bool
}

// parseInfo extracts the fields this program uses from an info line. Lines
// that are not info lines, or info lines with none of them (currmove
// chatter), report false.
func parseInfo(line string) (Info, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return Info{}, false
	}
	var info Info
	seen := false
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				info.Depth, _ = strconv.Atoi(fields[i+1])
				seen = true
				i++
			}
		case "seldepth":
			if i+1 < len(fields) {
				info.SelDepth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				info.MultiPV, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err == nil {
					switch fields[i+1] {
					case "cp":
						info.Score = Score{CP: n}
						info.HasScore = true
						seen = true
					case "mate":
						info.Score = Score{Mate: n, IsMate: true}
						info.HasScore = true
						seen = true
					}
				}
				i += 2
			}
		case "nps":
			if i+1 < len(fields) {
				info.NPS, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				info.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "time":
			if i+1 < len(fields) {
				info.TimeMS, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "pv":
			info.PV = append([]string(nil), fields[i+1:]...)
			seen = true
			i = len(fields)
		}
	}
	return info, seen
}

// parseBestmove reads "bestmove e2e4 [ponder ...]".
func parseBestmove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) >= 2 && fields[0] == "bestmove" {
		return fields[1], true
	}
	return "", false
}

// Option is one engine option advertised during the handshake.
type Option struct {
	Name    string
	Type    string // spin, check, combo, string, button
	Default string
	Min     int
	Max     int
	Vars    []string
}

// parseOption reads an "option name ... type ..." handshake line. Names may
// contain spaces, so parsing is keyword-driven.
func parseOption(line string) (Option, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "option" {
		return Option{}, false
	}
	var opt Option
	i := 1
	for i < len(fields) {
		switch fields[i] {
		case "name":
			i++
			var parts []string
			for i < len(fields) && !isOptionKeyword(fields[i]) {
				parts = append(parts, fields[i])
				i++
			}
			opt.Name = strings.Join(parts, " ")
		case "type":
			i++
			if i < len(fields) {
				opt.Type = fields[i]
				i++
			}
		case "default":
			i++
			var parts []string
			for i < len(fields) && !isOptionKeyword(fields[i]) {
				parts = append(parts, fields[i])
				i++
			}
			opt.Default = strings.Join(parts, " ")
		case "min":
			i++
			if i < len(fields) {
				opt.Min, _ = strconv.Atoi(fields[i])
				i++
			}
		case "max":
			i++
			if i < len(fields) {
				opt.Max, _ = strconv.Atoi(fields[i])
				i++
			}
		case "var":
			i++
			var parts []string
			for i < len(fields) && !isOptionKeyword(fields[i]) {
				parts = append(parts, fields[i])
				i++
			}
			opt.Vars = append(opt.Vars, strings.Join(parts, " "))
		default:
			i++
		}
	}
	return opt, opt.Name != ""
}

func isOptionKeyword(s string) bool {
	switch s {
	case "name", "type", "default", "min", "max", "var":
		return true
	}
	return false
}

// parseID reads "id name ..." / "id author ..." handshake lines.
func parseID(line string) (key, value string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "id" {
		return "", "", false
	}
	return fields[1], strings.Join(fields[2:], " "), true
}

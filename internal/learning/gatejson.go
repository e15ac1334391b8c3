package learning

import (
	"encoding/json"
	"strings"
)

// verdictReply is the JSON shape every gate prompt demands. Confidence is
// a pointer so gate 2a can tell "absent" apart from 0.
type verdictReply struct {
	Verdict    string   `json:"verdict"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// parseVerdict decodes a gate reply. Models rarely return the bare JSON
// they were asked for, so the payload is dug out of code fences or
// surrounding prose before decoding. A missing reason becomes
// "No reason provided".
func parseVerdict(reply string) (verdictReply, error) {
	var v verdictReply
	if err := json.Unmarshal([]byte(extractJSON(reply)), &v); err != nil {
		return verdictReply{}, err
	}
	if v.Reason == "" {
		v.Reason = "No reason provided"
	}
	return v, nil
}

// extractJSON returns the most plausible JSON object embedded in raw:
// a ```json fence, then any ``` fence, then the outermost braces, then
// the trimmed text itself.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)

	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(trimmed, marker)
		if start < 0 {
			continue
		}
		rest := trimmed[start+len(marker):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	open := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if open >= 0 && last > open {
		return trimmed[open : last+1]
	}
	return trimmed
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

package ppv

import "strings"

// SegmentType tags a script segment.
type SegmentType string

const (
	SegmentMessage SegmentType = "message"
	SegmentPPV     SegmentType = "ppv"
)

// Segment is one atomic unit of a script: plain text to deliver verbatim, or
// a PPV offer that gates on payment before the script continues. Raw always
// holds the exact source span so that concatenating every segment's Raw in
// order reconstructs the original script.
type Segment struct {
	Type    SegmentType
	Text    string   // trimmed message text, or the generated offer text for PPV
	Raw     string   // exact source span
	Command *Command // set for PPV segments only
}

// SplitSegments splits a script body into an ordered, immutable sequence of
// alternating message and PPV segments. Text strictly between two command
// spans (or before the first / after the last) becomes a message segment when
// non-empty after trimming.
func SplitSegments(script string) []Segment {
	commands := ParseCommands(script)
	if len(commands) == 0 {
		if strings.TrimSpace(script) == "" {
			return nil
		}
		return []Segment{{Type: SegmentMessage, Text: strings.TrimSpace(script), Raw: script}}
	}

	var segments []Segment
	last := 0
	for i := range commands {
		cmd := commands[i]
		if cmd.Position > last {
			raw := script[last:cmd.Position]
			if text := strings.TrimSpace(raw); text != "" {
				segments = append(segments, Segment{Type: SegmentMessage, Text: text, Raw: raw})
			}
		}
		segments = append(segments, Segment{
			Type:    SegmentPPV,
			Text:    cmd.OfferMessage(),
			Raw:     cmd.Raw,
			Command: &commands[i],
		})
		last = cmd.End()
	}
	if last < len(script) {
		raw := script[last:]
		if text := strings.TrimSpace(raw); text != "" {
			segments = append(segments, Segment{Type: SegmentMessage, Text: text, Raw: raw})
		}
	}
	return segments
}

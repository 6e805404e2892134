// Package logstream turns the game client's Player.log into a stream of
// parsed frames. The Tailer follows the file across truncation and
// rotation, and the Extractor pulls complete JSON values out of the raw
// line stream, tolerating the free text the client interleaves with them.
package logstream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// FrameKind classifies what a Frame carries.
type FrameKind int

const (
	// FrameJSON is a complete JSON object extracted from the stream.
	FrameJSON FrameKind = iota
	// FrameStateTransition is a client scene change ("old" -> "new").
	FrameStateTransition
	// FrameMatchMarker signals the client is inside an active match
	// stream (a "Match to <UID>:" header was seen).
	FrameMatchMarker
)

// Frame is one unit of extractor output, in arrival order.
type Frame struct {
	Kind   FrameKind
	Object map[string]any // set for FrameJSON
	Old    string         // set for FrameStateTransition
	New    string         // set for FrameStateTransition
}

// maxFrameBytes bounds the accumulation buffer. A still-open frame
// larger than this is assumed to be corrupted (log rotation mid-frame)
// and is dropped so memory cannot grow without bound.
const maxFrameBytes = 8_000_000

var (
	stateRe   = regexp.MustCompile(`STATE CHANGED.*\{"old":"([^"]+)","new":"([^"]+)"\}`)
	matchToRe = regexp.MustCompile(`Match to ([A-Z0-9]+):`)
)

// Extractor is a stateful scanner that converts raw log lines into
// frames. A JSON value may span any number of lines; the extractor keeps
// its brace depth, string state, and partial buffer across Feed calls,
// so the output is the same no matter how the input is split.
type Extractor struct {
	buf      []byte
	depth    int
	inString bool
	escaped  bool
}

// NewExtractor returns a fresh extractor with no open frame.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Feed scans one line (or any chunk of input) and returns the frames it
// completes, in order. Malformed JSON is discarded silently; Feed never
// fails.
func (e *Extractor) Feed(line string) []Frame {
	var out []Frame

	if m := stateRe.FindStringSubmatch(line); m != nil {
		out = append(out, Frame{Kind: FrameStateTransition, Old: m[1], New: m[2]})
	}
	if matchToRe.MatchString(line) {
		out = append(out, Frame{Kind: FrameMatchMarker})
	}

	for i := 0; i < len(line); i++ {
		c := line[i]

		if e.depth == 0 {
			// Free text between frames; only an opening brace starts
			// accumulation.
			if c == '{' {
				e.buf = append(e.buf[:0], '{')
				e.depth = 1
				e.inString = false
				e.escaped = false
			}
			continue
		}

		e.buf = append(e.buf, c)
		switch {
		case e.escaped:
			e.escaped = false
		case c == '\\':
			e.escaped = true
		case c == '"':
			e.inString = !e.inString
		case !e.inString && c == '{':
			e.depth++
		case !e.inString && c == '}':
			e.depth--
			if e.depth == 0 {
				if obj := e.finish(); obj != nil {
					out = append(out, Frame{Kind: FrameJSON, Object: obj})
				}
			}
		}

		if e.depth > 0 && len(e.buf) > maxFrameBytes {
			// Broken frame; reset the scanner rather than grow forever.
			e.buf = nil
			e.depth = 0
			e.inString = false
			e.escaped = false
		}
	}

	return out
}

// finish parses the accumulated buffer. Returns nil for malformed JSON
// (truncated or garbled frames are expected during log rotation).
func (e *Extractor) finish() map[string]any {
	raw := e.buf
	e.buf = nil

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if req, ok := obj["request"]; ok {
		obj["request"] = decodeRequest(req)
	}
	return obj
}

// decodeRequest unwraps a request value that is itself a JSON-encoded
// string, up to 3 levels deep. Anything that stops looking like JSON is
// returned as-is.
func decodeRequest(val any) any {
	v := val
	for i := 0; i < 3; i++ {
		s, ok := v.(string)
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(s)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			break
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			break
		}
		v = decoded
	}
	return v
}

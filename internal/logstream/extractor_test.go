package logstream

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// jsonFrames filters extractor output down to the JSON objects.
func jsonFrames(frames []Frame) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f.Kind == FrameJSON {
			out = append(out, f.Object)
		}
	}
	return out
}

func TestFeedExtractsJSONFromFreeText(t *testing.T) {
	e := NewExtractor()
	frames := e.Feed(`[UnityCrossThreadLogger]some prefix {"greToClientEvent":{"x":1}} trailing junk`)

	objs := jsonFrames(frames)
	if len(objs) != 1 {
		t.Fatalf("got %d JSON frames, want 1", len(objs))
	}
	if _, ok := objs[0]["greToClientEvent"]; !ok {
		t.Error("missing greToClientEvent key")
	}
}

func TestFeedMultiLineFrame(t *testing.T) {
	e := NewExtractor()
	var frames []Frame
	for _, line := range []string{`{"a":`, `  {"b": 2}`, `}`} {
		frames = append(frames, e.Feed(line)...)
	}

	objs := jsonFrames(frames)
	if len(objs) != 1 {
		t.Fatalf("got %d JSON frames, want 1", len(objs))
	}
	inner, ok := objs[0]["a"].(map[string]any)
	if !ok || inner["b"] != float64(2) {
		t.Errorf("parsed %v, want nested object", objs[0])
	}
}

func TestFeedSplitInvariance(t *testing.T) {
	input := `junk {"one":1} mid {"two":{"deep":"va}lue"}} tail` + "\n" +
		`{"three":` + "\n" + `3}` + "\n"

	whole := NewExtractor()
	var wholeFrames []Frame
	for _, line := range strings.Split(input, "\n") {
		wholeFrames = append(wholeFrames, whole.Feed(line)...)
	}

	charwise := NewExtractor()
	var charFrames []Frame
	for _, line := range strings.Split(input, "\n") {
		for _, c := range line {
			charFrames = append(charFrames, charwise.Feed(string(c))...)
		}
	}

	a, b := jsonFrames(wholeFrames), jsonFrames(charFrames)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("split changed output:\nline-wise: %v\nchar-wise: %v", a, b)
	}
	if len(a) != 3 {
		t.Errorf("got %d JSON frames, want 3", len(a))
	}
}

func TestFeedBracesInsideStrings(t *testing.T) {
	e := NewExtractor()
	frames := e.Feed(`{"msg":"a { tricky } value","esc":"quote \" and brace {"}`)

	objs := jsonFrames(frames)
	if len(objs) != 1 {
		t.Fatalf("got %d JSON frames, want 1", len(objs))
	}
	if objs[0]["msg"] != "a { tricky } value" {
		t.Errorf("msg = %v", objs[0]["msg"])
	}
}

func TestFeedMalformedFrameIsDiscarded(t *testing.T) {
	e := NewExtractor()
	// Balanced braces but invalid JSON.
	frames := e.Feed(`{invalid json}`)
	if len(jsonFrames(frames)) != 0 {
		t.Error("malformed frame should be discarded")
	}

	// The extractor must keep working afterwards.
	frames = e.Feed(`{"ok":true}`)
	objs := jsonFrames(frames)
	if len(objs) != 1 || objs[0]["ok"] != true {
		t.Errorf("extractor did not recover: %v", frames)
	}
}

func TestFeedDecodesNestedRequest(t *testing.T) {
	e := NewExtractor()
	// request is a JSON-encoded string containing another JSON-encoded string.
	inner := `{\"Summary\":{\"Name\":\"Mono Red\"}}`
	frames := e.Feed(`{"request":"` + inner + `"}`)

	objs := jsonFrames(frames)
	if len(objs) != 1 {
		t.Fatalf("got %d JSON frames, want 1", len(objs))
	}
	req, ok := objs[0]["request"].(map[string]any)
	if !ok {
		t.Fatalf("request not decoded: %T", objs[0]["request"])
	}
	summary, ok := req["Summary"].(map[string]any)
	if !ok || summary["Name"] != "Mono Red" {
		t.Errorf("request decoded to %v", req)
	}
}

func TestFeedStateTransitionAndMarker(t *testing.T) {
	e := NewExtractor()
	frames := e.Feed(`[Client GRE] STATE CHANGED {"old":"Matchmaking","new":"Playing"}`)

	var st *Frame
	for i := range frames {
		if frames[i].Kind == FrameStateTransition {
			st = &frames[i]
		}
	}
	if st == nil {
		t.Fatal("no state transition frame")
	}
	if st.Old != "Matchmaking" || st.New != "Playing" {
		t.Errorf("transition = %q -> %q", st.Old, st.New)
	}
	// The literal {"old":...} braces are also scanned as ordinary JSON.
	if len(jsonFrames(frames)) != 1 {
		t.Errorf("expected the transition payload to also parse as JSON")
	}

	frames = e.Feed(`Match to ABC123XYZ: GreToClientEvent`)
	found := false
	for _, f := range frames {
		if f.Kind == FrameMatchMarker {
			found = true
		}
	}
	if !found {
		t.Error("no match marker frame")
	}
}

func TestFeedOversizedFrameResetsScanner(t *testing.T) {
	e := NewExtractor()

	// Open a frame and pour in more than the ceiling without closing it.
	e.Feed(`{"garbage":"`)
	filler := strings.Repeat("x", 1<<20)
	for i := 0; i < 9; i++ {
		e.Feed(filler)
	}
	if e.depth != 0 || len(e.buf) != 0 {
		t.Fatalf("scanner not reset: depth=%d buf=%d", e.depth, len(e.buf))
	}

	// Clean extraction resumes.
	frames := e.Feed(`{"after":1}`)
	objs := jsonFrames(frames)
	if len(objs) != 1 || objs[0]["after"] != float64(1) {
		t.Errorf("extractor did not resume after reset: %v", frames)
	}
}

func TestFeedMultipleFramesOneLine(t *testing.T) {
	e := NewExtractor()
	var lines []string
	for i := 0; i < 3; i++ {
		lines = append(lines, fmt.Sprintf(`{"n":%d}`, i))
	}
	frames := e.Feed(strings.Join(lines, " noise "))

	objs := jsonFrames(frames)
	if len(objs) != 3 {
		t.Fatalf("got %d JSON frames, want 3", len(objs))
	}
	for i, obj := range objs {
		if obj["n"] != float64(i) {
			t.Errorf("frame %d = %v, order not preserved", i, obj)
		}
	}
}

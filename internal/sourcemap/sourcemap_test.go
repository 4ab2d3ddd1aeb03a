package sourcemap

import (
	"encoding/json"
	"testing"
)

// TestEncodeVLQKnownValues checks against the reference VLQ encodings used
// across Source Map v3 implementations (mozilla/source-map's fixtures).
func TestEncodeVLQKnownValues(t *testing.T) {
	cases := map[int]string{
		0:   "A",
		1:   "C",
		-1:  "D",
		16:  "gB",
		-16: "hB",
	}
	for value, want := range cases {
		if got := encodeVLQ(value); got != want {
			t.Errorf("encodeVLQ(%d) = %q, want %q", value, got, want)
		}
	}
}

func TestRenderProducesValidSourceMapV3(t *testing.T) {
	b := NewBuilder()
	idx := b.AddSource("main.js", "console.log(1);\n", true)

	b.StartLine()
	b.AddSegment(Segment{GeneratedColumn: 0, SourceIndex: idx, SourceLine: 0, SourceColumn: 0})
	b.StartLine()
	b.AddSegment(Segment{GeneratedColumn: 0, SourceIndex: idx, SourceLine: 1, SourceColumn: 0})

	raw := b.Render()

	var decoded struct {
		Version        int      `json:"version"`
		Sources        []string `json:"sources"`
		SourcesContent []string `json:"sourcesContent"`
		Mappings       string   `json:"mappings"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Render produced invalid JSON: %v", err)
	}
	if decoded.Version != 3 {
		t.Fatalf("version = %d, want 3", decoded.Version)
	}
	if len(decoded.Sources) != 1 || decoded.Sources[0] != "main.js" {
		t.Fatalf("sources = %v, want [main.js]", decoded.Sources)
	}
	if len(decoded.SourcesContent) != 1 || decoded.SourcesContent[0] == "" {
		t.Fatalf("expected inlined sourcesContent, got %v", decoded.SourcesContent)
	}
	if decoded.Mappings == "" {
		t.Fatalf("expected non-empty mappings")
	}
}

func TestRenderOmitsSourcesContentWhenNotInlined(t *testing.T) {
	b := NewBuilder()
	b.AddSource("main.js", "console.log(1);\n", false)
	b.StartLine()
	b.AddSegment(Segment{GeneratedColumn: 0, SourceIndex: 0, SourceLine: 0, SourceColumn: 0})

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(b.Render(), &decoded); err != nil {
		t.Fatalf("Render produced invalid JSON: %v", err)
	}
	if _, present := decoded["sourcesContent"]; present {
		t.Fatalf("expected sourcesContent omitted when nothing was inlined")
	}
}

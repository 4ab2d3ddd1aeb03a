// Package sourcemap builds Source Map v3 payloads (spec.md §4.6), composing
// original-source -> transformed -> final-byte-offset mappings without any
// third-party VLQ library, matching the teacher's own choice to hand-roll
// this in internal/sourcemap rather than import one.
package sourcemap

import (
	"encoding/json"
	"strings"
)

// Segment is one mapping entry: a generated-code column mapped back to a
// source file, line, and column (plus an optional name index).
type Segment struct {
	GeneratedColumn int
	SourceIndex     int
	SourceLine      int
	SourceColumn    int
	NameIndex       int
	HasName         bool
}

// Builder accumulates segments line by line and renders Source Map v3 JSON.
type Builder struct {
	Sources       []string
	SourcesContent []string
	Names         []string
	lines         [][]Segment
	nameIndex     map[string]int
}

func NewBuilder() *Builder {
	return &Builder{nameIndex: map[string]int{}}
}

// AddSource registers a source file and returns its index, optionally
// inlining its content (spec.md §4.6: "with optional sourcesContent
// inlined").
func (b *Builder) AddSource(path, content string, inline bool) int {
	idx := len(b.Sources)
	b.Sources = append(b.Sources, path)
	if inline {
		b.SourcesContent = append(b.SourcesContent, content)
	} else {
		b.SourcesContent = append(b.SourcesContent, "")
	}
	return idx
}

// StartLine begins a new generated line; call once per output line before
// adding its segments.
func (b *Builder) StartLine() {
	b.lines = append(b.lines, nil)
}

func (b *Builder) AddSegment(seg Segment) {
	if len(b.lines) == 0 {
		b.StartLine()
	}
	b.lines[len(b.lines)-1] = append(b.lines[len(b.lines)-1], seg)
}

// file is the on-disk Source Map v3 JSON shape.
type file struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names,omitempty"`
	Mappings       string   `json:"mappings"`
}

// Render serializes the accumulated mappings as Source Map v3 (spec.md
// §4.6).
func (b *Builder) Render() []byte {
	f := file{
		Version: 3,
		Sources: b.Sources,
		Names:   b.Names,
	}
	hasContent := false
	for _, c := range b.SourcesContent {
		if c != "" {
			hasContent = true
			break
		}
	}
	if hasContent {
		f.SourcesContent = b.SourcesContent
	}
	f.Mappings = encodeMappings(b.lines)
	out, _ := json.Marshal(f)
	return out
}

// encodeMappings VLQ-encodes every line's segments. The generated column is
// delta-encoded relative to the previous segment on the same line (it resets
// at each new line); source index, source line, source column and name index
// are delta-encoded relative to the previous segment across the whole map
// (the standard Source Map v3 scheme).
func encodeMappings(lines [][]Segment) string {
	var sb strings.Builder
	prevSourceIndex, prevSourceLine, prevSourceColumn, prevNameIndex := 0, 0, 0, 0

	for lineIdx, segs := range lines {
		if lineIdx > 0 {
			sb.WriteByte(';')
		}
		prevGeneratedColumn := 0
		for i, seg := range segs {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(encodeVLQ(seg.GeneratedColumn - prevGeneratedColumn))
			prevGeneratedColumn = seg.GeneratedColumn

			sb.WriteString(encodeVLQ(seg.SourceIndex - prevSourceIndex))
			prevSourceIndex = seg.SourceIndex

			sb.WriteString(encodeVLQ(seg.SourceLine - prevSourceLine))
			prevSourceLine = seg.SourceLine

			sb.WriteString(encodeVLQ(seg.SourceColumn - prevSourceColumn))
			prevSourceColumn = seg.SourceColumn

			if seg.HasName {
				sb.WriteString(encodeVLQ(seg.NameIndex - prevNameIndex))
				prevNameIndex = seg.NameIndex
			}
		}
	}
	return sb.String()
}

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// encodeVLQ base64-VLQ encodes a signed integer per the Source Map v3 spec:
// the sign occupies the low bit, then 5 bits per base64 digit with a
// continuation bit in the 6th.
func encodeVLQ(value int) string {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}

	var sb strings.Builder
	for {
		digit := vlq & 0x1f
		vlq >>= 5
		if vlq > 0 {
			digit |= 0x20
		}
		sb.WriteByte(base64Chars[digit])
		if vlq == 0 {
			break
		}
	}
	return sb.String()
}

package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasErrorsOnlyCountsErrorSeverity(t *testing.T) {
	l := NewLog()
	l.AddWarning(KindTransform, nil, "just a warning")
	assert.False(t, l.HasErrors())

	l.AddError(KindParse, nil, "boom")
	assert.True(t, l.HasErrors())
}

func TestDoneSortsByFileThenLineThenColumn(t *testing.T) {
	l := NewLog()
	l.Add(Msg{Kind: KindParse, Location: &Location{File: "b.js", Line: 2, Column: 0}})
	l.Add(Msg{Kind: KindParse, Location: &Location{File: "a.js", Line: 5, Column: 1}})
	l.Add(Msg{Kind: KindParse, Location: &Location{File: "a.js", Line: 1, Column: 3}})
	l.Add(Msg{Kind: KindConfig}) // no location: sorts first

	got := l.Done()
	require.Len(t, got, 4)
	assert.Nil(t, got[0].Location)
	assert.Equal(t, "a.js", got[1].Location.File)
	assert.Equal(t, 1, got[1].Location.Line)
	assert.Equal(t, "a.js", got[2].Location.File)
	assert.Equal(t, 5, got[2].Location.Line)
	assert.Equal(t, "b.js", got[3].Location.File)
}

func TestDoneIsASnapshot(t *testing.T) {
	l := NewLog()
	l.AddError(KindIO, nil, "first")
	snap := l.Done()
	l.AddError(KindIO, nil, "second")
	assert.Len(t, snap, 1, "Done should not observe messages added after the snapshot")
	assert.Len(t, l.Done(), 2)
}

func TestExcerptWithoutLocation(t *testing.T) {
	m := Msg{Severity: Error, Kind: KindConfig, Text: "no entries configured"}
	assert.Equal(t, "config: error: no entries configured", m.Excerpt())
}

func TestExcerptWithLocationRendersCaret(t *testing.T) {
	m := Msg{
		Severity: Error,
		Kind:     KindParse,
		Text:     "unexpected token",
		Location: &Location{File: "a.js", Line: 3, Column: 4, Length: 2, LineText: "  const x ="},
	}
	out := m.Excerpt()
	assert.True(t, strings.Contains(out, "a.js:3:5: unexpected token"))
	assert.True(t, strings.Contains(out, "  const x ="))
	assert.True(t, strings.Contains(out, "^^"))
}

func TestExcerptIncludesHintAndSuggestion(t *testing.T) {
	m := Msg{
		Kind:     KindResolution,
		Severity: Warning,
		Text:     "module not found",
		Location: &Location{File: "a.js", Line: 1, Column: 0, Suggestion: "did you mean './b.js'?"},
		Hint:     "check your alias config",
	}
	out := m.Excerpt()
	assert.True(t, strings.Contains(out, "hint: did you mean"))
	assert.True(t, strings.Contains(out, "hint: check your alias config"))
}

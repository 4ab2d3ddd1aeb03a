// Package hmr implements the Hot-Update Dispatcher of spec.md §4.7: it
// classifies a re-transformed module's update as a module replace, a
// stylesheet replace, or a forced full reload, and serializes UpdatePackets
// for the Update Channel Server to broadcast.
package hmr

import (
	"sync/atomic"
	"time"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
)

// UpdateKind is spec.md §3's UpdatePacket.kind taxonomy.
type UpdateKind string

const (
	ModuleReplace     UpdateKind = "module-replace"
	StylesheetReplace UpdateKind = "stylesheet-replace"
	FullReload        UpdateKind = "full-reload"
	BuildError        UpdateKind = "build-error"
	BuildOk           UpdateKind = "build-ok"
)

// Diagnostic is the structured payload of a BuildError packet, per spec.md
// §4.7: "file, 1-based line/column, span length, excerpt, message."
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Length  int    `json:"length"`
	Excerpt string `json:"excerpt"`
	Message string `json:"message"`
}

// UpdatePacket is spec.md §3's UpdatePacket data model.
type UpdatePacket struct {
	Seq       uint64      `json:"seq"`
	Kind      UpdateKind  `json:"kind"`
	ModuleIds []string    `json:"module_ids,omitempty"`
	Payload   *Diagnostic `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Dispatcher owns the monotone seq counter (spec.md §3: "seq is monotone per
// server lifetime") and the classification rule of spec.md §4.7 step 5.
type Dispatcher struct {
	seq uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) nextSeq() uint64 {
	return atomic.AddUint64(&d.seq, 1)
}

// hotAcceptable reports whether m can absorb a targeted module replace
// without the host needing a full page reload. Stylesheets are handled by
// their own StylesheetReplace path; only script kinds (JavaScript,
// TypeScript, JSX, TSX, WASM) accept a live replace, so JSON and HTML
// modules do not.
func hotAcceptable(m *graph.Module) bool {
	return m.Kind.IsScript()
}

// Classify implements spec.md §4.7 step 5: CSS/CSS-module changes become
// StylesheetReplace; a JS/TS module whose exports didn't change becomes
// ModuleReplace; any module whose exports changed and whose reverse-closure
// includes a module that is not hot-acceptance-capable forces FullReload.
func Classify(g *graph.ModuleGraph, changed graph.ModuleId, exportsChanged bool) (UpdateKind, []graph.ModuleId) {
	m, ok := g.Get(changed)
	if !ok {
		return FullReload, nil
	}
	if m.Kind.IsStylesheet() {
		return StylesheetReplace, []graph.ModuleId{changed}
	}
	if !exportsChanged {
		return ModuleReplace, []graph.ModuleId{changed}
	}

	closure := g.ReverseClosure(changed)
	ids := make([]graph.ModuleId, 0, len(closure))
	forceReload := false
	for id := range closure {
		ids = append(ids, id)
		cm, ok := g.Get(id)
		if !ok || !hotAcceptable(cm) {
			forceReload = true
		}
	}
	if forceReload {
		return FullReload, ids
	}
	return ModuleReplace, ids
}

// Build constructs an UpdatePacket for a ModuleReplace/StylesheetReplace/
// FullReload classification, assigning the next monotone seq (spec.md §4.7
// step 6), stamped with a caller-supplied timestamp (time.Now() is not
// called here so the packet's clock source stays the caller's choice).
func (d *Dispatcher) Build(kind UpdateKind, moduleIds []graph.ModuleId, now time.Time) UpdatePacket {
	ids := make([]string, len(moduleIds))
	for i, id := range moduleIds {
		ids[i] = string(id)
	}
	return UpdatePacket{
		Seq:       d.nextSeq(),
		Kind:      kind,
		ModuleIds: ids,
		Timestamp: now.UnixMilli(),
	}
}

// BuildError constructs a BuildError packet from a structured diagnostic,
// per spec.md §4.7: "build failures produce BuildError packets containing a
// structured diagnostic... that clients render as an overlay."
func (d *Dispatcher) BuildError(msg logger.Msg, now time.Time) UpdatePacket {
	diag := Diagnostic{Message: msg.Text}
	if msg.Location != nil {
		diag.File = msg.Location.File
		diag.Line = msg.Location.Line
		diag.Column = msg.Location.Column + 1
		diag.Length = msg.Location.Length
		diag.Excerpt = msg.Excerpt()
	}
	return UpdatePacket{
		Seq:       d.nextSeq(),
		Kind:      BuildError,
		Payload:   &diag,
		Timestamp: now.UnixMilli(),
	}
}

// BuildOk constructs the overlay-clearing packet sent "on first subsequent
// successful build" after a BuildError (spec.md §4.7).
func (d *Dispatcher) BuildOk(now time.Time) UpdatePacket {
	return UpdatePacket{Seq: d.nextSeq(), Kind: BuildOk, Timestamp: now.UnixMilli()}
}

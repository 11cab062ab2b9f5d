// Package models defines the wire shapes for the caption broadcast
// channel and the events published to Kafka.
package models

import (
	"encoding/json"
	"strings"
)

// BroadcastSegment is the single internal shape every inbound broadcast
// message normalizes to. Seq is nil for legacy senders that carry no
// sequence id.
type BroadcastSegment struct {
	Seq        *int64
	Text       string
	IsFinal    bool
	SourceEcho string
}

// Meta carries per-segment metadata on the legacy "translation" shape and
// on the meta block of the live shape.
type Meta struct {
	Mode       string `json:"mode,omitempty"`
	Partial    *bool  `json:"partial,omitempty"`
	Seq        *int64 `json:"seq,omitempty"`
	IsFinal    *bool  `json:"is_final,omitempty"`
	SegmentID  *int64 `json:"segment_id,omitempty"`
	Rev        int    `json:"rev"`
	SourceText string `json:"source_text,omitempty"`
}

// LangText pairs a text with its language tag.
type LangText struct {
	Text string `json:"text,omitempty"`
	Lang string `json:"lang,omitempty"`
}

// Envelope is the superset of both broadcast shapes:
//
//	{"type":"translation","payload":...,"lang":...,"meta":{...}}
//	{"mode":"live"|"pre"|"realtime","text":...,"seq":...,"src":{...},"tgt":{...}}
//
// The populated discriminator field (Type or Mode) decides which one a
// frame is.
type Envelope struct {
	// Legacy shape.
	Type    string `json:"type,omitempty"`
	Payload string `json:"payload,omitempty"`
	Lang    string `json:"lang,omitempty"`

	// Simplified live shape.
	Mode string    `json:"mode,omitempty"`
	Text string    `json:"text,omitempty"`
	Seq  *int64    `json:"seq,omitempty"`
	Src  *LangText `json:"src,omitempty"`
	Tgt  *LangText `json:"tgt,omitempty"`

	Meta *Meta `json:"meta,omitempty"`
}

// Normalize parses a raw broadcast frame into a BroadcastSegment.
// Returns false for unparseable JSON, unknown shapes, and frames with no
// usable text; such frames are dropped at the edge so reconciliation
// never sees them.
func Normalize(raw []byte) (BroadcastSegment, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return BroadcastSegment{}, false
	}
	return env.Normalize()
}

// Normalize converts a decoded Envelope into the internal segment shape.
func (e *Envelope) Normalize() (BroadcastSegment, bool) {
	switch {
	case e.Type == "translation":
		seg := BroadcastSegment{Text: e.Payload}
		if e.Meta != nil {
			seg.Seq = e.Meta.Seq
			if seg.Seq == nil {
				seg.Seq = e.Meta.SegmentID
			}
			seg.SourceEcho = e.Meta.SourceText
			seg.IsFinal = metaFinal(e.Meta, false)
		}
		return seg, strings.TrimSpace(seg.Text) != ""

	case e.Mode == "live" || e.Mode == "pre" || e.Mode == "realtime":
		seg := BroadcastSegment{Text: e.Text, Seq: e.Seq}
		if e.Src != nil {
			seg.SourceEcho = e.Src.Text
		}
		// "live" frames default to final when unflagged; "pre" and
		// "realtime" previews default to non-final.
		seg.IsFinal = e.Mode == "live"
		if e.Meta != nil {
			if seg.Seq == nil {
				seg.Seq = e.Meta.Seq
			}
			seg.IsFinal = metaFinal(e.Meta, seg.IsFinal)
		}
		return seg, strings.TrimSpace(seg.Text) != ""
	}
	return BroadcastSegment{}, false
}

func metaFinal(m *Meta, def bool) bool {
	if m.IsFinal != nil {
		return *m.IsFinal
	}
	if m.Partial != nil {
		return !*m.Partial
	}
	return def
}

// LiveMessages builds the two outbound shapes every commit is broadcast
// as, mirroring the consumer contract the frontend already speaks.
func LiveMessages(seq int64, translated, srcText, srcLang, tgtLang string) (live, legacy Envelope) {
	final := true
	partial := false
	meta := &Meta{
		Mode:      "realtime",
		Partial:   &partial,
		Seq:       &seq,
		IsFinal:   &final,
		SegmentID: &seq,
	}
	if srcText != "" {
		meta.SourceText = srcText
	}
	live = Envelope{
		Mode: "live",
		Text: translated,
		Seq:  &seq,
		Src:  &LangText{Text: srcText, Lang: srcLang},
		Tgt:  &LangText{Lang: tgtLang},
		Meta: meta,
	}
	legacy = Envelope{
		Type:    "translation",
		Payload: translated,
		Lang:    tgtLang,
		Meta:    meta,
	}
	return live, legacy
}

// PreviewMessage builds the outbound non-final preview frame for the
// upcoming sequence id.
func PreviewMessage(seq int64, translated, srcText, srcLang, tgtLang string) Envelope {
	partial := true
	final := false
	return Envelope{
		Mode: "pre",
		Text: translated,
		Seq:  &seq,
		Src:  &LangText{Text: srcText, Lang: srcLang},
		Tgt:  &LangText{Lang: tgtLang},
		Meta: &Meta{Mode: "pre", Partial: &partial, Seq: &seq, IsFinal: &final},
	}
}

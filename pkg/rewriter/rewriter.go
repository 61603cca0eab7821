// Package rewriter implements an edit buffer over one immutable source
// buffer. Edits accumulate as byte ranges with replacement text and are
// resolved only when the final text is rendered, so later phases can keep
// reasoning in original-file offsets without drift.
package rewriter

import (
	"bytes"
	"fmt"
	"sort"
)

// Span is a half-open byte range [Start, End).
type Span struct {
	Start uint32
	End   uint32
}

type edit struct {
	start uint32
	end   uint32
	text  string
	seq   int
}

func (e edit) length() uint32 { return e.end - e.start }

// Rewriter accumulates edits against an immutable base text.
type Rewriter struct {
	src   []byte
	edits []edit
}

// New creates a rewriter over src. The buffer is not copied and must not be
// mutated while the rewriter is alive.
func New(src []byte) *Rewriter {
	return &Rewriter{src: src}
}

// Source returns the base text the rewriter was created with.
func (r *Rewriter) Source() []byte { return r.src }

// Delete schedules removal of [start, end).
func (r *Rewriter) Delete(start, end uint32) {
	r.Replace(start, end, "")
}

// Replace schedules replacement of [start, end) with text. Zero-length
// ranges are ignored.
func (r *Rewriter) Replace(start, end uint32, text string) {
	if end <= start {
		return
	}
	r.edits = append(r.edits, edit{start: start, end: end, text: text, seq: len(r.edits)})
}

// HasEdits reports whether any edit has been scheduled.
func (r *Rewriter) HasEdits() bool { return len(r.edits) > 0 }

// Deleted returns the merged union of all scheduled deletions, sorted by
// start offset.
func (r *Rewriter) Deleted() []Span {
	var spans []Span
	for _, e := range r.edits {
		if e.text == "" {
			spans = append(spans, Span{e.start, e.end})
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Covered reports whether every byte of [start, end) lies inside a scheduled
// deletion. An empty range is trivially covered.
func (r *Rewriter) Covered(start, end uint32) bool {
	if end <= start {
		return true
	}
	for _, s := range r.Deleted() {
		if start < s.Start {
			return false
		}
		if start < s.End {
			if end <= s.End {
				return true
			}
			start = s.End
		}
	}
	return false
}

// Blank reports whether [start, end) contains only whitespace and deleted
// text. Used to decide whether a region has been effectively emptied.
func (r *Rewriter) Blank(start, end uint32) bool {
	if end > uint32(len(r.src)) {
		return false
	}
	deleted := r.Deleted()
	di := 0
	for off := start; off < end; off++ {
		for di < len(deleted) && deleted[di].End <= off {
			di++
		}
		if di < len(deleted) && deleted[di].Start <= off {
			continue
		}
		switch r.src[off] {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

// Apply resolves all scheduled edits against the base text and returns the
// final output. When two edits overlap, the tighter edit wins inside the
// overlap and the outer edit's remaining portions still apply; exact ties go
// to the edit scheduled later. With no edits the base text is returned as-is.
func (r *Rewriter) Apply() ([]byte, error) {
	if len(r.edits) == 0 {
		return r.src, nil
	}
	limit := uint32(len(r.src))
	points := make([]uint32, 0, len(r.edits)*2)
	for _, e := range r.edits {
		if e.end > limit {
			return nil, fmt.Errorf("edit [%d,%d) exceeds source length %d", e.start, e.end, limit)
		}
		points = append(points, e.start, e.end)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	points = dedupe(points)

	var buf bytes.Buffer
	buf.Grow(len(r.src))
	emitted := make([]bool, len(r.edits))
	cursor := uint32(0)
	for i := 0; i+1 < len(points); i++ {
		segStart, segEnd := points[i], points[i+1]
		owner := r.owner(segStart, segEnd)
		if owner < 0 {
			continue
		}
		buf.Write(r.src[cursor:segStart])
		if !emitted[owner] {
			buf.WriteString(r.edits[owner].text)
			emitted[owner] = true
		}
		cursor = segEnd
	}
	buf.Write(r.src[cursor:])
	return buf.Bytes(), nil
}

// owner returns the index of the edit owning the elementary segment
// [start, end), or -1 when no edit covers it. The tightest covering edit
// wins; among equals, the most recently scheduled one.
func (r *Rewriter) owner(start, end uint32) int {
	best := -1
	for i, e := range r.edits {
		if e.start > start || e.end < end {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := r.edits[best]
		if e.length() < b.length() || (e.length() == b.length() && e.seq > b.seq) {
			best = i
		}
	}
	return best
}

func dedupe(v []uint32) []uint32 {
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

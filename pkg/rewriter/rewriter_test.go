package rewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, r *Rewriter) string {
	t.Helper()
	out, err := r.Apply()
	require.NoError(t, err)
	return string(out)
}

func TestNoEdits(t *testing.T) {
	r := New([]byte("int main() {}"))
	assert.False(t, r.HasEdits())
	assert.Equal(t, "int main() {}", apply(t, r))
}

func TestSingleDelete(t *testing.T) {
	r := New([]byte("abcdef"))
	r.Delete(2, 4)
	assert.True(t, r.HasEdits())
	assert.Equal(t, "abef", apply(t, r))
}

func TestDisjointDeletes(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Delete(0, 2)
	r.Delete(8, 10)
	assert.Equal(t, "234567", apply(t, r))
}

func TestZeroLengthIgnored(t *testing.T) {
	r := New([]byte("abc"))
	r.Delete(1, 1)
	assert.False(t, r.HasEdits())
}

func TestReplace(t *testing.T) {
	r := New([]byte("hello world"))
	r.Replace(6, 11, "there")
	assert.Equal(t, "hello there", apply(t, r))
}

func TestNestedDeleteInsideDelete(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Delete(1, 9)
	r.Delete(3, 5)
	assert.Equal(t, "09", apply(t, r))
}

func TestTighterReplaceWinsInsideDelete(t *testing.T) {
	// The outer delete still removes its remaining portions but the
	// tighter replace keeps its own text.
	r := New([]byte("0123456789"))
	r.Delete(0, 10)
	r.Replace(4, 6, "X")
	assert.Equal(t, "X", apply(t, r))
}

func TestPartialOverlap(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Delete(0, 6)
	r.Delete(4, 10)
	assert.Equal(t, "", apply(t, r))
}

func TestEditBeyondSource(t *testing.T) {
	r := New([]byte("abc"))
	r.Delete(1, 7)
	_, err := r.Apply()
	assert.Error(t, err)
}

func TestDeletedMergesAdjacentSpans(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Delete(0, 3)
	r.Delete(3, 5)
	r.Delete(7, 8)
	spans := r.Deleted()
	require.Len(t, spans, 2)
	assert.Equal(t, Span{0, 5}, spans[0])
	assert.Equal(t, Span{7, 8}, spans[1])
}

func TestCovered(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Delete(2, 5)
	r.Delete(5, 8)

	assert.True(t, r.Covered(2, 8))
	assert.True(t, r.Covered(3, 4))
	assert.False(t, r.Covered(1, 3))
	assert.False(t, r.Covered(7, 9))
	assert.True(t, r.Covered(4, 4))
}

func TestCoveredIgnoresReplacements(t *testing.T) {
	r := New([]byte("0123456789"))
	r.Replace(2, 5, "x")
	assert.False(t, r.Covered(2, 5))
}

func TestBlank(t *testing.T) {
	src := []byte("int x;\n  \t\nint y;\n")
	r := New(src)

	assert.False(t, r.Blank(0, 6))
	assert.True(t, r.Blank(6, 11))

	r.Delete(0, 6)
	assert.True(t, r.Blank(0, 11))
	assert.False(t, r.Blank(0, uint32(len(src))))
}

func TestIdempotentApply(t *testing.T) {
	r := New([]byte("aa bb cc"))
	r.Delete(3, 6)
	first := apply(t, r)
	second := apply(t, r)
	assert.Equal(t, first, second)
}

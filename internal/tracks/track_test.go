package tracks

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxes(t *testing.T, tr *Track, segment string) []string {
	t.Helper()
	b, ok := tr.Segment(segment)
	require.True(t, ok, "segment %s missing", segment)
	return b
}

func mapKey(times map[string]float64) TimeKey {
	return func(id string) (float64, bool) {
		v, ok := times[id]
		return v, ok
	}
}

// ---------------------------------------------------------------------------
// Construction and membership
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	tr := New("s1", "root")
	assert.Equal(t, []string{"s1"}, tr.Order())
	assert.Equal(t, []string{"root"}, boxes(t, tr, "s1"))

	empty := New("", "")
	assert.Equal(t, 0, empty.Len())
}

func TestAddIsIdempotent(t *testing.T) {
	tr := New("s1", "b1")
	assert.False(t, tr.Add("b1", "s1"))
	assert.True(t, tr.Add("b2", "s1"))
	assert.False(t, tr.Add("b3", "unknown"))
	assert.Equal(t, []string{"b1", "b2"}, boxes(t, tr, "s1"))

	tr.AddSegment("s1")
	assert.Equal(t, []string{"s1"}, tr.Order())
}

func TestInsert(t *testing.T) {
	key := mapKey(map[string]float64{"b1": 1.0, "b2": 2.0, "b3": 3.0, "b2b": 2.0, "late": math.NaN()})
	tr := New("s1", "b1")
	require.True(t, tr.Add("b3", "s1"))

	assert.True(t, tr.Insert("b2", "s1", key))
	assert.Equal(t, []string{"b1", "b2", "b3"}, boxes(t, tr, "s1"))

	// equal times keep insertion order
	assert.True(t, tr.Insert("b2b", "s1", key))
	assert.Equal(t, []string{"b1", "b2", "b2b", "b3"}, boxes(t, tr, "s1"))

	assert.True(t, tr.Insert("late", "s1", key))
	assert.Equal(t, "late", boxes(t, tr, "s1")[4])

	assert.False(t, tr.Insert("b2", "s1", key), "duplicate")
	assert.False(t, tr.Insert("b9", "nope", key), "unknown segment")
	assert.True(t, tr.Sorted(key))
}

func TestLookups(t *testing.T) {
	tr := New("s1", "b1")
	tr.AddSegment("s2")
	tr.Add("b2", "s2")

	seg, ok := tr.SegmentOf("b2")
	assert.True(t, ok)
	assert.Equal(t, "s2", seg)
	_, ok = tr.SegmentOf("nope")
	assert.False(t, ok)

	next, ok := tr.Next("s1")
	assert.True(t, ok)
	assert.Equal(t, "s2", next)
	_, ok = tr.Next("s2")
	assert.False(t, ok)
	_, ok = tr.Next("missing")
	assert.False(t, ok)

	first, ok := tr.First("s2")
	assert.True(t, ok)
	assert.Equal(t, "b2", first)
	tr.AddSegment("s3")
	_, ok = tr.First("s3")
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------------

func TestDeleteSegment(t *testing.T) {
	tr := New("s1", "b1")
	tr.Add("b2", "s1")
	tr.AddSegment("s2")

	removed := tr.DeleteSegment("s1")
	assert.Equal(t, []string{"b1", "b2"}, removed)
	assert.Equal(t, []string{"s2"}, tr.Order())
	assert.False(t, tr.HasSegment("s1"))
	assert.Nil(t, tr.DeleteSegment("s1"))
}

func TestDelete(t *testing.T) {
	tr := New("s1", "b1")
	tr.Add("b2", "s1")

	got, ok := tr.Delete("b1", "s1")
	assert.True(t, ok)
	assert.Equal(t, "b1", got)
	assert.Equal(t, []string{"b2"}, boxes(t, tr, "s1"))

	// an unlisted box must not disturb the list
	_, ok = tr.Delete("b9", "s1")
	assert.False(t, ok)
	assert.Equal(t, []string{"b2"}, boxes(t, tr, "s1"))

	_, ok = tr.Delete("b2", "gone")
	assert.False(t, ok)

	// emptied segments persist
	tr.Delete("b2", "s1")
	assert.True(t, tr.HasSegment("s1"))
	assert.Empty(t, boxes(t, tr, "s1"))
}

func TestTruncate(t *testing.T) {
	tr := New("s1", "b1")
	tr.Add("b2", "s1")
	tr.Add("b3", "s1")

	assert.Equal(t, []string{"b2", "b3"}, tr.Truncate("s1"))
	assert.Equal(t, []string{"b1"}, boxes(t, tr, "s1"))
	assert.Nil(t, tr.Truncate("s1"))
	assert.Nil(t, tr.Truncate("missing"))
}

func TestTruncateAfter(t *testing.T) {
	tr := New("s1", "b1")
	for _, b := range []string{"b2", "b3", "b4"} {
		tr.Add(b, "s1")
	}

	assert.Equal(t, []string{"b4"}, tr.TruncateAfter("s1", "b3"))
	assert.Equal(t, []string{"b1", "b2", "b3"}, boxes(t, tr, "s1"))
	assert.Nil(t, tr.TruncateAfter("s1", "unknown"))
	assert.Nil(t, tr.TruncateAfter("s1", "b3"))
}

func TestAfterLeavesTrackUnchanged(t *testing.T) {
	tr := New("s1", "b1")
	for _, b := range []string{"b2", "b3", "b4"} {
		tr.Add(b, "s1")
	}

	assert.Equal(t, []string{"b3", "b4"}, tr.After("s1", "b2"))
	assert.Equal(t, []string{"b1", "b2", "b3", "b4"}, boxes(t, tr, "s1"))
	assert.Nil(t, tr.After("s1", "b4"))
	assert.Nil(t, tr.After("s1", "unknown"))
	assert.Nil(t, tr.After("missing", "b1"))
}

// ---------------------------------------------------------------------------
// SplitAt
// ---------------------------------------------------------------------------

func TestSplitAt(t *testing.T) {
	tr := New("s1", "b1")
	for _, b := range []string{"b2", "b3", "b4"} {
		tr.Add(b, "s1")
	}
	tr.AddSegment("s9")

	require.True(t, tr.SplitAt("b3", "s1", "s2"))

	if diff := cmp.Diff([]string{"s1", "s2", "s9"}, tr.Order()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"b1", "b2"}, boxes(t, tr, "s1"))
	assert.Equal(t, []string{"b3", "b4"}, boxes(t, tr, "s2"))

	t.Run("rejects unknown old segment", func(t *testing.T) {
		assert.False(t, tr.SplitAt("b1", "missing", "s3"))
	})
	t.Run("rejects existing new segment", func(t *testing.T) {
		assert.False(t, tr.SplitAt("b1", "s1", "s9"))
		assert.Equal(t, []string{"b1", "b2"}, boxes(t, tr, "s1"))
	})
	t.Run("unlisted box inserts an empty segment", func(t *testing.T) {
		require.True(t, tr.SplitAt("zz", "s2", "s3"))
		assert.Equal(t, []string{"s1", "s2", "s3", "s9"}, tr.Order())
		assert.Equal(t, []string{"b3", "b4"}, boxes(t, tr, "s2"))
		assert.Empty(t, boxes(t, tr, "s3"))
	})
}

func TestSplitThenDeleteCascades(t *testing.T) {
	tr := New("s1", "b1")
	for _, b := range []string{"b2", "b3", "b4"} {
		tr.Add(b, "s1")
	}
	prefix := []string{"b1", "b2"}

	require.True(t, tr.SplitAt("b3", "s1", "s2"))
	removed := tr.DeleteSegment("s2")

	// split followed by delete is not a no-op: the suffix is handed back
	// for deletion and never returns to s1
	assert.Equal(t, []string{"b3", "b4"}, removed)
	assert.Equal(t, prefix, boxes(t, tr, "s1"))
	assert.Equal(t, []string{"s1"}, tr.Order())
	_, found := tr.SegmentOf("b3")
	assert.False(t, found)
}

// ---------------------------------------------------------------------------
// Sort
// ---------------------------------------------------------------------------

func TestSort(t *testing.T) {
	times := map[string]float64{
		"s1": 5, "s2": 1, "s3": 3,
		"a": 5.2, "b": 5.1, "c": 5.0,
	}
	tr := New("s1", "a")
	tr.Add("b", "s1")
	tr.Add("c", "s1")
	tr.AddSegment("s2")
	tr.AddSegment("s3")
	key := mapKey(times)

	assert.False(t, tr.Sorted(key))
	tr.Sort(key)
	assert.True(t, tr.Sorted(key))
	assert.Equal(t, []string{"s2", "s3", "s1"}, tr.Order())
	assert.Equal(t, []string{"c", "b", "a"}, boxes(t, tr, "s1"))
}

func TestSortUnresolvedLast(t *testing.T) {
	times := map[string]float64{"s1": 2, "s2": math.NaN(), "s4": 1}
	tr := New("s1", "")
	tr.AddSegment("s2")
	tr.AddSegment("s3") // unknown to the key
	tr.AddSegment("s4")

	tr.Sort(mapKey(times))
	assert.Equal(t, []string{"s4", "s1", "s2", "s3"}, tr.Order())
}

func TestSortEqualKeysStable(t *testing.T) {
	times := map[string]float64{"s1": 1, "s2": 1, "s3": 0}
	tr := New("s1", "")
	tr.AddSegment("s2")
	tr.AddSegment("s3")
	tr.Sort(mapKey(times))
	assert.Equal(t, []string{"s3", "s1", "s2"}, tr.Order())
}

func TestCopiesAreDetached(t *testing.T) {
	tr := New("s1", "b1")
	o := tr.Order()
	o[0] = "mutated"
	b := boxes(t, tr, "s1")
	b[0] = "mutated"
	assert.Equal(t, []string{"s1"}, tr.Order())
	assert.Equal(t, []string{"b1"}, boxes(t, tr, "s1"))
}

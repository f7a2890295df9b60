package pathcodec_test

import (
	"testing"

	"github.com/kapilratnani/pgfire/internal/pathcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := pathcodec.Parse("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "a", p.Root)
	assert.Equal(t, []string{"a", "b", "c"}, p.Segments)
	assert.Equal(t, "{a,b,c}", p.Canonical)
	assert.False(t, p.Whole)
}

func TestParseSingleSegment(t *testing.T) {
	p, err := pathcodec.Parse("a")
	require.NoError(t, err)
	assert.Equal(t, "a", p.Root)
	assert.Equal(t, []string{"a"}, p.Segments)
	assert.Equal(t, "{a}", p.Canonical)
}

func TestParseEmptyIsWhole(t *testing.T) {
	p, err := pathcodec.Parse("")
	require.NoError(t, err)
	assert.True(t, p.Whole)
}

func TestParseRejectsEmptySegment(t *testing.T) {
	_, err := pathcodec.Parse("a//b")
	require.Error(t, err)
	assert.ErrorIs(t, err, pathcodec.ErrInvalidPath)
}

func TestParseRejectsControlChars(t *testing.T) {
	_, err := pathcodec.Parse("a/b\nc")
	require.Error(t, err)
	assert.ErrorIs(t, err, pathcodec.ErrInvalidPath)
}

func TestBuildSkeletonSingle(t *testing.T) {
	got := pathcodec.BuildSkeleton([]string{"a"}, map[string]any{"d": 1})
	assert.Equal(t, map[string]any{"a": map[string]any{"d": 1}}, got)
}

func TestBuildSkeletonNested(t *testing.T) {
	got := pathcodec.BuildSkeleton([]string{"a", "b", "c"}, 5)
	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": 5,
			},
		},
	}, got)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "a/b/c", pathcodec.Join([]string{"a", "b", "c"}))
}

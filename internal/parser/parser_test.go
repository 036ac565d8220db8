package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleCommand(t *testing.T) {
	p, err := Parse("echo hello world")
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)
	assert.Equal(t, []string{"echo", "hello", "world"}, p.Segments[0].Argv)
	assert.False(t, p.Background)
}

func TestPipeline(t *testing.T) {
	p, err := Parse("cat file.txt | grep foo | wc -l")
	require.NoError(t, err)
	require.Len(t, p.Segments, 3)
	assert.Equal(t, []string{"cat", "file.txt"}, p.Segments[0].Argv)
	assert.Equal(t, []string{"grep", "foo"}, p.Segments[1].Argv)
	assert.Equal(t, []string{"wc", "-l"}, p.Segments[2].Argv)
}

func TestPipeInsideQuotesIsNotASplitPoint(t *testing.T) {
	p, err := Parse(`echo "a|b"`)
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)
	assert.Equal(t, []string{"echo", "a|b"}, p.Segments[0].Argv)
}

func TestBackgroundFlag(t *testing.T) {
	p, err := Parse("sleep 10 &")
	require.NoError(t, err)
	assert.True(t, p.Background)
	assert.Equal(t, []string{"sleep", "10"}, p.Segments[0].Argv)
}

func TestAmpersandInsideQuotesIsLiteral(t *testing.T) {
	p, err := Parse(`echo "a&b"`)
	require.NoError(t, err)
	assert.False(t, p.Background)
	assert.Equal(t, []string{"echo", "a&b"}, p.Segments[0].Argv)
}

func TestRedirections(t *testing.T) {
	p, err := Parse("sort < in.txt > out.txt")
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)
	seg := p.Segments[0]
	assert.Equal(t, []string{"sort"}, seg.Argv)
	assert.Equal(t, "in.txt", seg.Infile)
	assert.Equal(t, "out.txt", seg.Outfile)
	assert.False(t, seg.Append)
}

func TestAppendRedirectionAttachedForm(t *testing.T) {
	p, err := Parse("echo hi >>out.log")
	require.NoError(t, err)
	seg := p.Segments[0]
	assert.Equal(t, []string{"echo", "hi"}, seg.Argv)
	assert.Equal(t, "out.log", seg.Outfile)
	assert.True(t, seg.Append)
}

func TestLastRedirectionWins(t *testing.T) {
	p, err := Parse("echo hi > a.txt > b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", p.Segments[0].Outfile)
}

func TestMissingRedirTargetIsError(t *testing.T) {
	_, err := Parse("echo hi >")
	assert.ErrorIs(t, err, ErrMissingRedirTarget)
}

func TestEmptyPipeSegmentIsError(t *testing.T) {
	_, err := Parse("echo hi | | wc")
	assert.ErrorIs(t, err, ErrEmptyPipeSegment)
}

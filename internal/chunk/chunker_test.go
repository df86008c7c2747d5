package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	c := NewChunker(100, 10)
	assert.Nil(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplit_ShortInput(t *testing.T) {
	c := NewChunker(100, 10)
	chunks := c.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplit_OverlapClamped(t *testing.T) {
	// overlap >= maxLen must not produce a zero or negative step
	c := NewChunker(100, 200)
	text := strings.Repeat("a", 500)
	chunks := c.Split(text)
	assert.NotEmpty(t, chunks)
}

func TestSplit_CoversWholeInput(t *testing.T) {
	maxLen, overlap := 100, 20
	c := NewChunker(maxLen, overlap)
	text := strings.Repeat("abcdefghij", 55) // 550 chars, no whitespace

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	// chunk i starts at offset i*step; its first `overlap` runes repeat the
	// tail of chunk i-1
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(chunks[i].Text[overlap:])
	}
	assert.Equal(t, text, rebuilt.String())

	// final chunk reaches the end of the input
	last := chunks[len(chunks)-1].Text
	assert.True(t, strings.HasSuffix(text, last))
}

func TestSplit_Indexes(t *testing.T) {
	c := NewChunker(50, 10)
	chunks := c.Split(strings.Repeat("x", 200))
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestSplit_DefaultsApplied(t *testing.T) {
	c := NewChunker(0, -5)
	assert.Equal(t, DefaultMaxLen, c.maxLen)
	assert.Equal(t, 0, c.overlap)
}

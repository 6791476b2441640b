package journal

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkerReassemblesOriginalBytes(t *testing.T) {
	src := make([]byte, 5*splitterMinFragment)
	rand.New(rand.NewSource(1)).Read(src)

	c := NewChunker(bytes.NewReader(src))
	var got []byte
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk.Data...)
	}
	require.Equal(t, src, got)
}

func TestChunkerRespectsMinAndMaxFragmentSize(t *testing.T) {
	src := make([]byte, 10*splitterMinFragment)
	rand.New(rand.NewSource(2)).Read(src)

	c := NewChunker(bytes.NewReader(src))
	var chunks [][]byte
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk.Data)
	}
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		require.LessOrEqual(t, len(ch), splitterMaxFragment)
		if i < len(chunks)-1 {
			require.GreaterOrEqual(t, len(ch), splitterMinFragment)
		}
	}
}

func TestChunkerIsDeterministicForIdenticalInput(t *testing.T) {
	src := make([]byte, 3*splitterMinFragment)
	rand.New(rand.NewSource(3)).Read(src)

	lengths := func() []int {
		c := NewChunker(bytes.NewReader(src))
		var out []int
		for {
			chunk, err := c.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			out = append(out, len(chunk.Data))
		}
		return out
	}

	require.Equal(t, lengths(), lengths())
}

func TestChunkerEmptyInputYieldsNoChunks(t *testing.T) {
	c := NewChunker(bytes.NewReader(nil))
	_, err := c.Next()
	require.Equal(t, io.EOF, err)
}

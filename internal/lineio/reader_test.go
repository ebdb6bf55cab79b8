package lineio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) []Line {
	t.Helper()
	var lines []Line
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestNextSplitsLines(t *testing.T) {
	lines := readAll(t, NewReader(strings.NewReader("a\r\nbb\n\nccc"), 0))

	require.Len(t, lines, 4)
	assert.Equal(t, "a", string(lines[0].Data))
	assert.Equal(t, "bb", string(lines[1].Data))
	assert.Empty(t, lines[2].Data)
	assert.Equal(t, "ccc", string(lines[3].Data))
	for _, l := range lines {
		assert.False(t, l.TooLong)
	}
}

func TestNextDrainsOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	lines := readAll(t, NewReader(strings.NewReader("ok\n"+long+"\nafter\n"), 1024))

	require.Len(t, lines, 3)
	assert.Equal(t, "ok", string(lines[0].Data))
	assert.True(t, lines[1].TooLong)
	assert.Nil(t, lines[1].Data)
	assert.Equal(t, len(long)+1, lines[1].Size)
	assert.Equal(t, "after", string(lines[2].Data))
}

func TestNextCapIsInclusive(t *testing.T) {
	lines := readAll(t, NewReader(strings.NewReader("abcd\r\nabcde\n"), 4))

	require.Len(t, lines, 2)
	assert.Equal(t, "abcd", string(lines[0].Data))
	assert.False(t, lines[0].TooLong)
	assert.True(t, lines[1].TooLong)
}

func TestStreamClosesAfterCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	items := NewReader(pr, 0).Stream(ctx)

	_, err := pw.Write([]byte("first\n"))
	require.NoError(t, err)
	item := <-items
	require.NoError(t, item.Err)
	assert.Equal(t, "first", string(item.Line.Data))

	cancel()
	require.NoError(t, pw.Close())

	done := make(chan struct{})
	go func() {
		for range items {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}

func TestStreamEndsWithEOF(t *testing.T) {
	items := NewReader(strings.NewReader("a\nb"), 0).Stream(context.Background())

	var got []string
	var last error
	for item := range items {
		if item.Err != nil {
			last = item.Err
			continue
		}
		got = append(got, string(item.Line.Data))
	}

	assert.Equal(t, []string{"a", "b"}, got)
	assert.ErrorIs(t, last, io.EOF)
}

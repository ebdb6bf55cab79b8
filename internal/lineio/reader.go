// Package lineio reads newline delimited requests with a per-line size cap.
package lineio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
)

// Line is one record without its terminator. Size counts every byte read for it,
// terminator included; oversized lines keep only Size.
type Line struct {
	Data    []byte
	Size    int
	TooLong bool
}

// Item is what Stream delivers: a line, or the error that ended reading.
type Item struct {
	Line Line
	Err  error
}

type Reader struct {
	r   *bufio.Reader
	max int
}

// NewReader caps lines at max bytes; max <= 0 disables the cap.
func NewReader(r io.Reader, max int) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024), max: max}
}

// Next returns the next line. A line over the cap is drained up to its newline and
// returned with TooLong set. The final line may lack a newline. io.EOF ends input.
func (lr *Reader) Next() (Line, error) {
	var line Line
	var buf []byte

	for {
		chunk, err := lr.r.ReadSlice('\n')
		line.Size += len(chunk)
		if !line.TooLong {
			// two spare bytes for a CRLF terminator
			if lr.max > 0 && len(buf)+len(chunk) > lr.max+2 {
				line.TooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			return lr.finish(line, buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if line.Size == 0 {
				return Line{}, io.EOF
			}
			return lr.finish(line, buf), nil
		default:
			return Line{}, err
		}
	}
}

func (lr *Reader) finish(line Line, buf []byte) Line {
	buf = bytes.TrimSuffix(buf, []byte("\n"))
	buf = bytes.TrimSuffix(buf, []byte("\r"))
	if lr.max > 0 && len(buf) > lr.max {
		line.TooLong = true
	}
	if line.TooLong {
		buf = nil
	}
	line.Data = buf
	return line
}

// Stream reads on a separate goroutine so callers can select on ctx while input is idle.
// The channel closes after the first error (io.EOF included) or once ctx is done. A read
// blocked on an open stream outlives ctx until that stream yields or closes.
func (lr *Reader) Stream(ctx context.Context) <-chan Item {
	items := make(chan Item)

	go func() {
		defer close(items)
		for {
			line, err := lr.Next()
			select {
			case items <- Item{Line: line, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	return items
}

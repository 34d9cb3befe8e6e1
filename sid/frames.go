package sid

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// EndOfStream terminates every encoded subsong.
const EndOfStream byte = 0xFF

// MaxFrameWrites is the largest number of writes a single frame can hold.
// A count of 0xFF would be read back as EndOfStream.
const MaxFrameWrites = 0xFE

// MaxStreamSize is the largest encoded stream that fits the C64's 64K address space.
const MaxStreamSize = 0x10000

// MaxFrame is the last frame a write can land in without the stream outgrowing MaxStreamSize:
// a count byte for every frame up to it, one write, and the terminator.
const MaxFrame = MaxStreamSize - 4

var (
	ErrFrameOverflow   = errors.New("too many register writes in one frame")
	ErrUnsortedLog     = errors.New("register writes are not in frame order")
	ErrTruncatedStream = errors.New("frame stream ends without terminator")
	ErrStreamTooLarge  = errors.New("frame stream does not fit in 64K")
)

// EncodedSize returns the number of bytes EncodeFrames will produce for the log,
// without checking the log for errors.
func (l WriteLog) EncodedSize() int {
	if len(l) == 0 {
		return 1
	}
	// One count byte per frame up to the last one, two bytes per write, and the terminator.
	return int(l[len(l)-1].Frame) + 1 + len(l)*2 + 1
}

// checkSize rejects logs whose stream could never be loaded, before anything is allocated for them.
func (l WriteLog) checkSize() error {
	for i, w := range l {
		if w.Frame > MaxFrame {
			return fmt.Errorf("%w: write %d is in frame %d (max %d)", ErrStreamTooLarge, i, w.Frame, MaxFrame)
		}
	}
	if size := l.EncodedSize(); size > MaxStreamSize {
		return fmt.Errorf("%w: %d bytes", ErrStreamTooLarge, size)
	}
	return nil
}

// EncodeFrames compacts the log into the per-frame format the player reads:
//
//	count, [register, value] * count   (once for every frame, starting at frame 0)
//	0xFF                               (end of stream)
//
// Frames without writes still take up one zero byte.
func EncodeFrames(l WriteLog) ([]byte, error) {
	if err := l.checkSize(); err != nil {
		return nil, err
	}
	buffer := bytes.NewBuffer(make([]byte, 0, l.EncodedSize()))
	if _, err := l.WriteTo(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// WriteTo writes the encoded frame stream of the log to w.
func (l WriteLog) WriteTo(w io.Writer) (int64, error) {
	if err := l.checkSize(); err != nil {
		return 0, err
	}
	var out bytes.Buffer

	var frame uint32
	pos := 0
	for pos < len(l) {
		if l[pos].Frame < frame {
			return 0, fmt.Errorf("%w: write %d is for frame %d, already at frame %d", ErrUnsortedLog, pos, l[pos].Frame, frame)
		}

		start := pos
		for pos < len(l) && l[pos].Frame == frame {
			pos++
		}

		count := pos - start
		if count > MaxFrameWrites {
			return 0, fmt.Errorf("%w: frame %d has %d writes (max %d)", ErrFrameOverflow, frame, count, MaxFrameWrites)
		}

		out.WriteByte(byte(count))
		for _, w := range l[start:pos] {
			out.WriteByte(w.Register)
			out.WriteByte(w.Value)
		}
		frame++
	}
	out.WriteByte(EndOfStream)

	n, err := w.Write(out.Bytes())
	return int64(n), err
}

// DecodeFrames reads one encoded stream from the start of data. It returns the
// writes (with their frame numbers restored) and the number of bytes consumed,
// including the terminator.
func DecodeFrames(data []byte) (WriteLog, int, error) {
	var log WriteLog
	var frame uint32

	i := 0
	for {
		if i >= len(data) {
			return log, i, fmt.Errorf("%w: %d bytes read", ErrTruncatedStream, i)
		}
		count := data[i]
		i++
		if count == EndOfStream {
			return log, i, nil
		}

		if i+int(count)*2 > len(data) {
			return log, len(data), fmt.Errorf("%w: frame %d needs %d bytes, %d left", ErrTruncatedStream, frame, int(count)*2, len(data)-i)
		}
		for n := 0; n < int(count); n++ {
			log = append(log, RegisterWrite{
				Frame:    frame,
				Register: data[i],
				Value:    data[i+1],
			})
			i += 2
		}
		frame++
	}
}

// Frames groups the log by frame. The result has one entry for every frame from
// zero to the last frame written to, empty frames included.
func (l WriteLog) Frames() [][]RegisterWrite {
	if len(l) == 0 {
		return nil
	}
	frames := make([][]RegisterWrite, l[len(l)-1].Frame+1)
	for _, w := range l {
		if int(w.Frame) < len(frames) {
			frames[w.Frame] = append(frames[w.Frame], w)
		}
	}
	return frames
}

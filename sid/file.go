package sid

import (
	"cmp"
	"fmt"
	"os"
	"slices"
)

// File is an exported PSID image read back into its parts.
type File struct {
	Header  Header
	Player  []byte
	Offsets OffsetTable

	// The decoded write stream of every offset table entry, in table order.
	Songs []WriteLog

	// Where each stream starts in the file.
	Starts []int
}

// ReadFile loads and parses the SID file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(data)
}

// ParseFile splits an exported image into header, player, offset table and streams.
func ParseFile(data []byte) (*File, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	playerStart := int(header.DataOffset)
	playerEnd := playerStart + PlayerSize
	if playerEnd > len(data) {
		return nil, fmt.Errorf("player blob runs past end of file (0x%04X > 0x%04X)", playerEnd, len(data))
	}

	offsets, err := ParseOffsetTable(data[playerEnd:], int(header.Songs))
	if err != nil {
		return nil, err
	}
	tableEnd := playerEnd + len(offsets)*2

	file := &File{
		Header:  header,
		Player:  data[playerStart:playerEnd],
		Offsets: offsets,
		Songs:   make([]WriteLog, len(offsets)),
		Starts:  make([]int, len(offsets)),
	}

	for i, offset := range offsets {
		start := int(Position(offset))
		if start < tableEnd || start >= len(data) {
			return nil, fmt.Errorf("subsong %d: offset 0x%04X points outside the stream area (0x%04X-0x%04X)", i+1, offset, tableEnd, len(data))
		}
		file.Starts[i] = start
	}

	// Decode in file order. Entries may share a stream, but streams may not overlap.
	order := make([]int, len(offsets))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(file.Starts[a], file.Starts[b])
	})

	prev, prevStart, prevEnd := -1, -1, tableEnd
	for _, i := range order {
		start := file.Starts[i]
		if start == prevStart {
			file.Songs[i] = file.Songs[prev]
			continue
		}
		if start < prevEnd {
			return nil, fmt.Errorf("subsong %d: stream at 0x%04X starts inside the previous stream (ends 0x%04X)", i+1, start, prevEnd)
		}

		log, n, err := DecodeFrames(data[start:])
		if err != nil {
			return nil, fmt.Errorf("subsong %d: %w", i+1, err)
		}
		file.Songs[i] = log
		prev, prevStart, prevEnd = i, start, start+n
	}

	return file, nil
}

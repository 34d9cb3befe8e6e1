package sid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Fixed values of the PSID header written by the exporter.
const (
	Magic      = "PSID"
	Version    = 2
	HeaderSize = 0x76

	// The player blob starts right after the header.
	DataOffset = HeaderSize

	LoadAddress uint16 = 0x1000
	InitAddress        = LoadAddress + PlayerInitOffset
	PlayAddress        = LoadAddress + PlayerPlayOffset

	// Speed value asking the host to drive the player from a CIA timer instead of the vertical blank.
	SpeedCIA uint32 = 0xFFFFFFFF
	SpeedVBI uint32 = 0

	DefaultName     = "Furnace Export"
	DefaultAuthor   = "Furnace Tracker"
	DefaultReleased = "2025"

	// Largest file position a 16-bit relocation offset can address.
	MaxStreamPosition = 0xFFFF

	textFieldSize = 32
)

var (
	ErrShortHeader  = errors.New("SID data too short")
	ErrInvalidMagic = errors.New("invalid SID magic")
)

// Header is the fixed PSID header. Field order and sizes match the file layout,
// so the struct can be written with encoding/binary as is.
type Header struct {
	Magic       [4]byte
	Version     uint16
	DataOffset  uint16
	LoadAddress uint16
	InitAddress uint16
	PlayAddress uint16
	Songs       uint16 // Number of subsongs in the exported range.
	StartSong   uint16 // 1-based.
	Speed       uint32
	Name        [textFieldSize]byte
	Author      [textFieldSize]byte
	Released    [textFieldSize]byte
}

// NewHeader builds the header for an export of the subsongs first..last (0-based, inclusive).
// startSong is the 1-based starting subsong from the export configuration.
func NewHeader(first, last, startSong int, useCIA bool) Header {
	h := Header{
		Version:     Version,
		DataOffset:  DataOffset,
		LoadAddress: LoadAddress,
		InitAddress: InitAddress,
		PlayAddress: PlayAddress,
		Songs:       uint16(last - first + 1),
		StartSong:   uint16(startSong),
		Speed:       SpeedVBI,
		Name:        padText(DefaultName),
		Author:      padText(DefaultAuthor),
		Released:    padText(DefaultReleased),
	}
	copy(h.Magic[:], Magic)
	if useCIA {
		h.Speed = SpeedCIA
	}
	return h
}

// padText returns s as a zero-padded fixed-width text field. Longer strings are cut off.
func padText(s string) [textFieldSize]byte {
	var field [textFieldSize]byte
	copy(field[:], s)
	return field
}

// unpadText returns the text of a fixed-width field up to the first zero byte.
func unpadText(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// Title returns the name field as a string.
func (h *Header) Title() string { return unpadText(h.Name[:]) }

// Composer returns the author field as a string.
func (h *Header) Composer() string { return unpadText(h.Author[:]) }

// Release returns the released field as a string.
func (h *Header) Release() string { return unpadText(h.Released[:]) }

// UsesCIA returns whether the header asks for CIA timing.
func (h *Header) UsesCIA() bool { return h.Speed != SpeedVBI }

// MarshalBinary returns the big-endian encoding of the header (always HeaderSize bytes).
func (h *Header) MarshalBinary() ([]byte, error) {
	buffer := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buffer, binary.BigEndian, h); err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}

	// Sanity check to make sure the struct still matches the file layout.
	if buffer.Len() != HeaderSize {
		return nil, fmt.Errorf("header size mismatch: got %d bytes, expected %d", buffer.Len(), HeaderSize)
	}
	return buffer.Bytes(), nil
}

// WriteTo writes the encoded header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	data, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ParseHeader reads a header from the start of data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data))
	}

	switch magic := string(data[:4]); magic {
	case "PSID", "RSID":
	default:
		return h, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}

	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.BigEndian, &h); err != nil {
		return h, fmt.Errorf("decoding header: %w", err)
	}
	return h, nil
}

// Pretty-print
func (h *Header) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%d:\n", string(h.Magic[:]), h.Version)
	fmt.Fprintf(&b, "- Name: %s\n", h.Title())
	fmt.Fprintf(&b, "- Author: %s\n", h.Composer())
	fmt.Fprintf(&b, "- Released: %s\n", h.Release())
	fmt.Fprintf(&b, "- Data offset: 0x%04X\n", h.DataOffset)
	fmt.Fprintf(&b, "- Load/init/play: $%04X / $%04X / $%04X\n", h.LoadAddress, h.InitAddress, h.PlayAddress)
	fmt.Fprintf(&b, "- Songs: %d (start song %d)\n", h.Songs, h.StartSong)
	b.WriteString("- Timing: ")
	if h.UsesCIA() {
		b.WriteString("CIA timer\n")
	} else {
		b.WriteString("vertical blank\n")
	}
	return b.String()
}

// OffsetTable holds the relocation offset of every exported subsong, in subsong order.
type OffsetTable []uint16

// RelocationOffset converts a file position into the value stored in the offset table.
// The arithmetic wraps at 16 bits.
func RelocationOffset(pos int64) uint16 {
	return uint16(pos) - LoadAddress
}

// Position is the inverse of RelocationOffset (modulo 64K).
func Position(offset uint16) uint16 {
	return offset + LoadAddress
}

// MarshalBinary returns the table as little-endian 16-bit values.
func (t OffsetTable) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(t)*2)
	for i, offset := range t {
		binary.LittleEndian.PutUint16(out[i*2:], offset)
	}
	return out, nil
}

// ParseOffsetTable reads n little-endian offsets from the start of data.
func ParseOffsetTable(data []byte, n int) (OffsetTable, error) {
	if len(data) < n*2 {
		return nil, fmt.Errorf("offset table needs %d bytes, got %d", n*2, len(data))
	}
	t := make(OffsetTable, n)
	for i := range t {
		t[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return t, nil
}

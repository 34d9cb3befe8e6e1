package export

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/QEStudios/SIDExporter/sid"
)

// Name is the exporter identity the host uses to route its configuration UI.
const Name = "Commodore 64 SID (.sid)"

// Maximum number of lines kept in the self-test log. Older lines are dropped.
const maxSelfTestLines = 1000

// Number of writes listed per subsong in the self-test log.
const selfTestWrites = 5

var (
	ErrStorageOpen  = errors.New("cannot open output for writing")
	ErrStorageWrite = errors.New("cannot write output")
	ErrSeek         = errors.New("cannot seek output")
	ErrRender       = errors.New("rendering failed")
)

// Composition is the song model being exported. Rendering is synchronous:
// RenderAll must have made every Record call for the selected subsong by the time it returns.
type Composition interface {
	SubsongCount() int
	SelectSubsong(index int) error
	RenderAll(rec sid.Recorder) error
}

// VideoStandard is implemented by compositions whose timing depends on PAL or NTSC.
// The exporter sets it from Config.PAL before rendering.
type VideoStandard interface {
	SetPAL(pal bool)
}

// Result describes a finished export.
type Result struct {
	Header  sid.Header
	Offsets sid.OffsetTable

	First, Last int   // Exported range (0-based, inclusive).
	Exported    []int // Subsongs that were rendered and encoded, in order.
	Skipped     []int // Subsongs in the range that were left out.
	Wrapped     []int // Subsongs whose stream starts too far into the file for a 16-bit offset.

	Writes  map[int]int // Captured register writes per exported subsong.
	Streams map[int]int // Encoded stream size per exported subsong.

	Size  int64 // Total size of the file.
	State State
}

// Exporter writes compositions as PSID files.
type Exporter struct {
	logger   *log.Logger
	state    State
	selfTest []string
}

// New creates an exporter. A nil logger logs to the standard logger.
func New(logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{
		logger: logger,
	}
}

// Name returns the exporter identity.
func (e *Exporter) Name() string {
	return Name
}

// State returns the step the last export reached.
func (e *Exporter) State() State {
	return e.state
}

// SelfTestLog returns the summary lines produced by the last export.
func (e *Exporter) SelfTestLog() []string {
	return e.selfTest
}

// logSelfTest appends a line to the self-test log.
func (e *Exporter) logSelfTest(format string, args ...any) {
	e.selfTest = append(e.selfTest, fmt.Sprintf(format, args...))
	if len(e.selfTest) > maxSelfTestLines {
		e.selfTest = e.selfTest[len(e.selfTest)-maxSelfTestLines:]
	}
}

func (e *Exporter) fail(err error) error {
	e.state = Failed
	return err
}

// Export writes the composition to filename, creating or truncating it.
func (e *Exporter) Export(c Composition, filename string, cfg Config) (*Result, error) {
	e.state = Idle
	e.selfTest = nil

	out, err := os.Create(filename)
	if err != nil {
		return nil, e.fail(fmt.Errorf("%w: %w", ErrStorageOpen, err))
	}

	result, err := e.ExportTo(out, c, cfg)
	if err != nil {
		out.Close()
		return nil, err
	}

	if err := out.Close(); err != nil {
		return nil, e.fail(fmt.Errorf("%w: closing %s: %w", ErrStorageWrite, filename, err))
	}

	e.logger.Printf("Wrote %s (%d bytes, %d subsongs)", filename, result.Size, len(result.Exported))
	return result, nil
}

// ExportTo writes the composition to ws. The offset table is written as a
// placeholder first and patched once every stream position is known, so the
// output has to be seekable. ws is left positioned at its end.
func (e *Exporter) ExportTo(ws io.WriteSeeker, c Composition, cfg Config) (*Result, error) {
	e.state = Idle
	e.selfTest = nil

	write := func(what string, p []byte) error {
		if _, err := ws.Write(p); err != nil {
			return e.fail(fmt.Errorf("%w: %s: %w", ErrStorageWrite, what, err))
		}
		return nil
	}
	seek := func(what string, offset int64, whence int) (int64, error) {
		pos, err := ws.Seek(offset, whence)
		if err != nil {
			return 0, e.fail(fmt.Errorf("%w: %s: %w", ErrSeek, what, err))
		}
		return pos, nil
	}

	numSubsongs := c.SubsongCount()
	if numSubsongs < 1 {
		e.logger.Printf("Composition reports %d subsongs, exporting it as one", numSubsongs)
		numSubsongs = 1
	}
	if start := clampStart(cfg.StartSong, numSubsongs); start != cfg.StartSong {
		e.logger.Printf("Start subsong %d out of range, using %d", cfg.StartSong, start)
		cfg.StartSong = start
	}
	first, last := cfg.Range(numSubsongs)

	if v, ok := c.(VideoStandard); ok {
		v.SetPAL(cfg.PAL)
	}

	e.logSelfTest("=== SID Export Self-Test ===")
	e.logSelfTest("Total subsongs: %d", numSubsongs)
	e.logSelfTest("Export range: %d to %d", first+1, last+1)
	e.logger.Printf("Exporting subsongs %d to %d of %d", first+1, last+1, numSubsongs)

	result := &Result{
		Header:  sid.NewHeader(first, last, cfg.StartSong, cfg.UseCIA),
		Offsets: make(sid.OffsetTable, last-first+1),
		First:   first,
		Last:    last,
		Writes:  make(map[int]int),
		Streams: make(map[int]int),
	}

	// Header, immediately followed by the player.
	header, err := result.Header.MarshalBinary()
	if err != nil {
		return nil, e.fail(err)
	}
	if err := write("header", header); err != nil {
		return nil, err
	}
	if err := write("player", sid.Player[:]); err != nil {
		return nil, err
	}
	e.state = HeaderWritten

	// Reserve the offset table. The real offsets are only known after encoding.
	tablePos, err := seek("locating offset table", 0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	placeholder := make([]byte, len(result.Offsets)*2)
	if err := write("offset table", placeholder); err != nil {
		return nil, err
	}
	e.state = PlaceholderTableWritten

	for s := first; s <= last; s++ {
		e.state = EncodingSubsongs
		if !cfg.includes(s, numSubsongs) {
			result.Skipped = append(result.Skipped, s)
			e.logSelfTest("Subsong %d: skipped", s+1)
			continue
		}

		// A fresh capture for every pass, so no writes carry over between subsongs.
		capture := sid.NewCapture()
		if err := c.SelectSubsong(s); err != nil {
			return nil, e.fail(fmt.Errorf("%w: selecting subsong %d: %w", ErrRender, s+1, err))
		}
		if err := c.RenderAll(capture); err != nil {
			return nil, e.fail(fmt.Errorf("%w: subsong %d: %w", ErrRender, s+1, err))
		}
		writes := capture.Log()
		e.logWrites(s, writes)

		stream, err := sid.EncodeFrames(writes)
		if err != nil {
			return nil, e.fail(fmt.Errorf("encoding subsong %d: %w", s+1, err))
		}

		dataPos, err := seek("locating subsong data", 0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		result.Offsets[s-first] = sid.RelocationOffset(dataPos)
		if dataPos > sid.MaxStreamPosition {
			result.Wrapped = append(result.Wrapped, s)
		}

		if err := write(fmt.Sprintf("subsong %d", s+1), stream); err != nil {
			return nil, err
		}

		result.Exported = append(result.Exported, s)
		result.Writes[s] = len(writes)
		result.Streams[s] = len(stream)
		e.logger.Printf("Subsong %d: %d writes, %d bytes at offset $%04X", s+1, len(writes), len(stream), result.Offsets[s-first])
	}
	e.logSelfTest("=== End of Self-Test ===")

	// Skipped subsongs share one empty stream so that every table entry points at valid data.
	if len(result.Skipped) > 0 {
		emptyPos, err := seek("locating empty stream", 0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		if err := write("empty stream", []byte{sid.EndOfStream}); err != nil {
			return nil, err
		}
		for _, s := range result.Skipped {
			result.Offsets[s-first] = sid.RelocationOffset(emptyPos)
			if emptyPos > sid.MaxStreamPosition {
				result.Wrapped = append(result.Wrapped, s)
			}
		}
	}

	// Go back and fill in the offset table, then return to the end so nothing is cut off.
	endPos, err := seek("locating end of file", 0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if _, err := seek("returning to offset table", tablePos, io.SeekStart); err != nil {
		return nil, err
	}
	table, err := result.Offsets.MarshalBinary()
	if err != nil {
		return nil, e.fail(err)
	}
	if err := write("patching offset table", table); err != nil {
		return nil, err
	}
	if _, err := seek("returning to end of file", endPos, io.SeekStart); err != nil {
		return nil, err
	}
	e.state = TablePatched

	// The player sees the file from DataOffset onwards at LoadAddress.
	if imageEnd := int64(sid.LoadAddress) + endPos - sid.DataOffset; imageEnd > 0x10000 {
		e.logger.Printf("WARNING: exported data ends at $%X, past the end of C64 memory", imageEnd)
	}
	if len(result.Wrapped) > 0 {
		names := make([]string, len(result.Wrapped))
		for i, s := range result.Wrapped {
			names[i] = strconv.Itoa(s + 1)
		}
		e.logger.Printf("WARNING: offsets of subsongs %s wrapped around 64K and point at the wrong data", strings.Join(names, ", "))
	}

	result.Size = endPos
	e.state = Done
	result.State = Done
	return result, nil
}

// logWrites adds the summary of one subsong's captured writes to the self-test log.
func (e *Exporter) logWrites(s int, writes sid.WriteLog) {
	e.logSelfTest("Subsong %d: total writes = %d", s+1, len(writes))
	for _, w := range writes[:min(len(writes), selfTestWrites)] {
		e.logSelfTest("  Frame %d: reg $%02X = $%02X", w.Frame, w.Register, w.Value)
	}
	if len(writes) > selfTestWrites {
		e.logSelfTest("  ... (%d more writes)", len(writes)-selfTestWrites)
	}
}

// Compile exports the composition into memory and returns the file contents.
func Compile(c Composition, cfg Config, logger *log.Logger) ([]byte, error) {
	var out memoryFile
	result, err := New(logger).ExportTo(&out, c, cfg)
	if err != nil {
		return nil, err
	}

	// Sanity check to make sure the output is the expected size.
	expected := sid.HeaderSize + sid.PlayerSize + len(result.Offsets)*2
	for _, size := range result.Streams {
		expected += size
	}
	if len(result.Skipped) > 0 {
		expected++
	}
	if len(out.Bytes()) != expected {
		return nil, fmt.Errorf("SID image size mismatch: got %d bytes, expected %d", len(out.Bytes()), expected)
	}
	return out.Bytes(), nil
}

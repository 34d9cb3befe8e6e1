// Package script loads compositions written as Lua programs.
//
// A script sets the global "subsongs" to the number of subsongs it holds and
// defines a function render(subsong, emit). For the selected subsong (1-based)
// render calls emit(frame, address, value[, chip]) once per register write, in
// time order. The chip defaults to SID; anything else is treated as another chip
// and dropped by the exporter.
//
// Scripts also see SID_BASE ($D400), SID and OTHER (chip ids), PAL, and the
// helper freq(hz) which returns the 16-bit oscillator value for a frequency.
package script

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/QEStudios/SIDExporter/sid"
	lua "github.com/yuin/gopher-lua"
)

var (
	ErrNoSubsong     = errors.New("subsong does not exist")
	ErrNoRender      = errors.New("script does not define render(subsong, emit)")
	ErrSubsongsCount = errors.New("script global 'subsongs' must be a positive integer")
)

// Chip ids as seen by scripts.
const (
	chipSID   = 1
	chipOther = 2
)

// Script is a Lua composition. It holds an open interpreter, so call Close when done with it.
type Script struct {
	Name string
	PAL  bool // Value of the PAL global, and the clock used by freq().

	state    *lua.LState
	count    int
	selected int
	logger   *log.Logger
}

// Load runs the script file at path and returns the composition it defines.
func Load(path string, logger *log.Logger) (*Script, error) {
	s := newScript(path, logger)
	if err := s.state.DoFile(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("error running script %s: %w", path, err)
	}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// LoadString is like Load but takes the script source directly.
func LoadString(name string, source string, logger *log.Logger) (*Script, error) {
	s := newScript(name, logger)
	if err := s.state.DoString(source); err != nil {
		s.Close()
		return nil, fmt.Errorf("error running script %s: %w", name, err)
	}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newScript(name string, logger *log.Logger) *Script {
	if logger == nil {
		logger = log.Default()
	}
	s := &Script{
		Name:   name,
		PAL:    true,
		state:  lua.NewState(),
		logger: logger,
	}

	L := s.state
	L.SetGlobal("SID_BASE", lua.LNumber(sid.RegisterBase))
	L.SetGlobal("SID", lua.LNumber(chipSID))
	L.SetGlobal("OTHER", lua.LNumber(chipOther))
	L.SetGlobal("PAL", lua.LBool(s.PAL))
	L.SetGlobal("freq", L.NewFunction(s.luaFreq))
	L.SetGlobal("print", L.NewFunction(s.luaPrint))
	return s
}

// init reads the globals the script has to define.
func (s *Script) init() error {
	count, ok := s.state.GetGlobal("subsongs").(lua.LNumber)
	if !ok || count < 1 || float64(count) != float64(int(count)) {
		return fmt.Errorf("%s: %w", s.Name, ErrSubsongsCount)
	}
	s.count = int(count)

	if _, ok := s.state.GetGlobal("render").(*lua.LFunction); !ok {
		return fmt.Errorf("%s: %w", s.Name, ErrNoRender)
	}

	s.logger.Printf("Loaded script %s with %d subsongs", s.Name, s.count)
	return nil
}

// Close releases the interpreter.
func (s *Script) Close() {
	if s.state != nil {
		s.state.Close()
		s.state = nil
	}
}

// SetPAL sets the PAL global and the clock freq() uses.
func (s *Script) SetPAL(pal bool) {
	s.PAL = pal
}

// SubsongCount returns the value of the script's subsongs global.
func (s *Script) SubsongCount() int {
	return s.count
}

// SelectSubsong makes subsong i (0-based) the one RenderAll plays.
func (s *Script) SelectSubsong(i int) error {
	if i < 0 || i >= s.count {
		return fmt.Errorf("%w: %d (script only contains %d subsongs)", ErrNoSubsong, i, s.count)
	}
	s.selected = i
	return nil
}

// RenderAll calls the script's render function for the selected subsong, forwarding every emit to rec.
func (s *Script) RenderAll(rec sid.Recorder) error {
	if s.state == nil {
		return fmt.Errorf("script %s is closed", s.Name)
	}
	L := s.state
	L.SetGlobal("PAL", lua.LBool(s.PAL))

	var lastFrame uint32
	emit := L.NewFunction(func(L *lua.LState) int {
		frame := L.CheckInt64(1)
		address := L.CheckInt(2)
		value := L.CheckInt(3)
		chip := L.OptInt(4, chipSID)

		if frame < 0 || frame > sid.MaxFrame {
			L.ArgError(1, fmt.Sprintf("frame out of range (0-%d)", sid.MaxFrame))
		}
		if uint32(frame) < lastFrame {
			L.ArgError(1, fmt.Sprintf("frame %d is before the previous write's frame %d", frame, lastFrame))
		}
		if address < 0 || address > 0xFFFF {
			L.ArgError(2, "address out of range")
		}
		if value < 0 || value > 0xFF {
			L.ArgError(3, "value out of range")
		}

		c := sid.ChipOther
		if chip == chipSID {
			c = sid.ChipSID
		}
		lastFrame = uint32(frame)
		rec.Record(c, uint16(address), byte(value), uint32(frame))
		return 0
	})

	err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("render"),
		NRet:    0,
		Protect: true,
	}, lua.LNumber(s.selected+1), emit)
	if err != nil {
		return fmt.Errorf("error rendering subsong %d of %s: %w", s.selected+1, s.Name, err)
	}
	return nil
}

// freq(hz) returns the oscillator register value of a frequency at the current clock.
func (s *Script) luaFreq(L *lua.LState) int {
	hz := float64(L.CheckNumber(1))
	clock := sid.ClockNTSC
	if s.PAL {
		clock = sid.ClockPAL
	}
	L.Push(lua.LNumber(sid.FrequencyRegister(hz, clock)))
	return 1
}

func (s *Script) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.logger.Printf("%s: %s", s.Name, strings.Join(parts, "\t"))
	return 0
}

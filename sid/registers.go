package sid

import (
	"fmt"
	"math"
	"strings"
)

const Voices = 3

// Register offsets inside one voice. Voice n starts at register n*VoiceRegisters.
const (
	FreqLo = iota
	FreqHi
	PulseWidthLo
	PulseWidthHi
	Control
	AttackDecay
	SustainRelease

	VoiceRegisters
)

// Registers shared by all voices.
const (
	FilterCutoffLo  = 0x15
	FilterCutoffHi  = 0x16
	FilterResonance = 0x17 // Resonance in the high nibble, voice routing in the low nibble.
	ModeVolume      = 0x18 // Filter mode in the high nibble, master volume in the low nibble.
)

// Control register bits.
const (
	ControlGate     byte = 1 << 0
	ControlSync     byte = 1 << 1
	ControlRing     byte = 1 << 2
	ControlTest     byte = 1 << 3
	ControlTriangle byte = 1 << 4
	ControlSawtooth byte = 1 << 5
	ControlPulse    byte = 1 << 6
	ControlNoise    byte = 1 << 7
)

const maxPulseWidth = (1 << 12) - 1

// System clocks of the C64.
const (
	ClockPAL  float64 = 985248
	ClockNTSC float64 = 1022727

	// Frame (vertical blank) rates that follow from the clocks.
	FrameRatePAL  = ClockPAL / (312 * 63)
	FrameRateNTSC = ClockNTSC / (263 * 65)
)

// VoiceRegister returns the register index of a per-voice register.
func VoiceRegister(voice int, offset int) uint8 {
	return uint8(voice*VoiceRegisters + offset)
}

// Address returns the 6502 address of a register index.
func Address(register uint8) uint16 {
	return RegisterBase + uint16(register)
}

// FrequencyRegister computes the (rounded) 16-bit oscillator value for a frequency at the given clock rate.
func FrequencyRegister(freq float64, clockRate float64) uint16 {
	v := math.RoundToEven(freq * (1 << 24) / clockRate)
	if v > math.MaxUint16 {
		// Too high to play, clamp instead of wrapping around to a low note.
		return math.MaxUint16
	}
	return uint16(v)
}

// PulseWidth converts a 4-bit duty cycle (as used by Furnace's 12xx effect) into the 12-bit register value.
func PulseWidth(duty uint8) uint16 {
	return min(uint16(duty&0x0f)<<8, maxPulseWidth)
}

var registerNames = [...]string{
	"FREQ LO", "FREQ HI", "PW LO", "PW HI", "CTRL", "AD", "SR",
}

var globalRegisterNames = map[uint8]string{
	FilterCutoffLo:  "FC LO",
	FilterCutoffHi:  "FC HI",
	FilterResonance: "RES/FILT",
	ModeVolume:      "MODE/VOL",
}

// RegisterName returns a short human readable name for a register index.
func RegisterName(register uint8) string {
	if register < Voices*VoiceRegisters {
		return fmt.Sprintf("V%d %s", register/VoiceRegisters+1, registerNames[register%VoiceRegisters])
	}
	if name, ok := globalRegisterNames[register]; ok {
		return name
	}
	return fmt.Sprintf("REG $%02X", register)
}

// column returns the table column a register belongs to: one per voice, then one for the shared registers.
func column(register uint8) int {
	if register < Voices*VoiceRegisters {
		return int(register / VoiceRegisters)
	}
	return Voices
}

func (w RegisterWrite) String() string {
	return fmt.Sprintf("%s = $%02X", RegisterName(w.Register), w.Value)
}

// FormatWritesByVoice formats the writes of one frame into a table with a column per voice
// and a final column for the filter and volume registers.
// headerNames: optional names for each column (if nil or empty entry, "Voice i" is used).
// indent: number of spaces to indent the table.
// minWidth: smallest width of a column.
func FormatWritesByVoice(writes []RegisterWrite, headerNames []string, indent int, minWidth int) string {
	const numColumns = Voices + 1

	header := func(i int) string {
		if i < len(headerNames) && headerNames[i] != "" {
			return headerNames[i]
		}
		if i == Voices {
			return "Filter"
		}
		return fmt.Sprintf("Voice %d", i+1)
	}

	// Group by column
	cols := make([][]RegisterWrite, numColumns)
	for _, w := range writes {
		c := column(w.Register)
		cols[c] = append(cols[c], w)
	}

	// Find max rows
	maxRows := 0
	for _, col := range cols {
		maxRows = max(maxRows, len(col))
	}

	// Calculate column widths
	widths := make([]int, numColumns)
	for i := 0; i < numColumns; i++ {
		widths[i] = len(header(i))
		for _, w := range cols[i] {
			widths[i] = max(widths[i], len(w.String()))
		}
		widths[i] = max(widths[i], minWidth)
	}

	padRight := func(s string, w int) string {
		if len(s) >= w {
			return s
		}
		return s + strings.Repeat(" ", w-len(s))
	}

	var b strings.Builder

	separator := func() {
		b.WriteString(strings.Repeat(" ", indent))
		for i := 0; i < numColumns; i++ {
			b.WriteString("+")
			b.WriteString(strings.Repeat("-", widths[i]+2)) // +2 for the space padding either side
		}
		b.WriteString("+\n")
	}

	separator()

	// Header row
	b.WriteString(strings.Repeat(" ", indent))
	for i := 0; i < numColumns; i++ {
		b.WriteString("| ")
		b.WriteString(padRight(header(i), widths[i]))
		b.WriteString(" ")
	}
	b.WriteString("|\n")

	separator()

	// Write rows
	for row := 0; row < maxRows; row++ {
		b.WriteString(strings.Repeat(" ", indent))
		for c := 0; c < numColumns; c++ {
			cell := ""
			if row < len(cols[c]) {
				cell = cols[c][row].String()
			}
			b.WriteString("| ")
			b.WriteString(padRight(cell, widths[c]))
			b.WriteString(" ")
		}
		b.WriteString("|\n")
	}

	separator()

	return b.String()
}

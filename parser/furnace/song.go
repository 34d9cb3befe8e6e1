package furnace

import (
	"fmt"
	"log"
	"math"
	"strings"
)

// A song composition, which can contain multiple subsongs.
type Song struct {
	Version int     // The version integer of Furnace that exported this song
	Name    string  // The name of the song.
	Author  string  // The author of the song.
	Album   string  // The album the song is a part of.
	Tuning  float64 // The frequency that A4 maps to in this song (usually 440 hz).

	// A slice of sound chips used in the song.
	SoundChips []*SoundChip

	// A slice of subsongs in the song.
	Subsongs []*Subsong

	// Rendering state, see render.go.
	PAL      bool // Render at the PAL frame rate and clock. Defaults to the first chip's clock setting.
	selected int
	logger   *log.Logger
}

// A single C64 SID chip configuration.
type SoundChip struct {
	Index int
	Name  string // The system name Furnace printed for the chip.
	Model int    // 6581 or 8580.
	PAL   bool   // Chip is clocked like a PAL C64 (clockSel=1).
}

// A single subsong inside a whole song composition.
type Subsong struct {
	Index         int
	Name          string  // The name of the subsong (can be blank).
	TickRate      float64 // The (starting) tick rate of the song.
	PatternLength uint8   // The length of each pattern in the song.

	// A slice of up to 16 speed values, where the values cycle every row.
	// The final update speed is calculated as the Tick Rate divided by the Frame Speed.
	Speeds   []uint8
	TimeBase int // Furnace multiplies the speeds by this number + 1, so when this is 0 the speeds remain unchanged.

	// A slice of every row in the subsong.
	Rows []Row
}

// A row in the (sub)song.
type Row struct {
	Index   int
	Notes   []Note
	Effects []Effect
}

type Note struct {
	Pitch    NotePitch
	HasPitch bool

	Volume    NoteVolume
	HasVolume bool

	Instrument    uint8
	HasInstrument bool

	Off bool // if true, is a note-off

	Channel Channel
}

type Channel uint8
type NotePitch int    // A single note (stored as a Midi note number).
type NoteVolume uint8 // A single note's volume (4-bit).
type EffectType int

const (
	EffectJumpToPattern EffectType = iota
	EffectJumpToNextPattern
	EffectSpeed
	EffectTickRateHz
	EffectTickRateBpm
	EffectStopSong
	EffectWaveform       // 10xx: bit 0 triangle, bit 1 saw, bit 2 pulse, bit 3 noise.
	EffectDutyCycle      // 12xx: pulse width, 0-F.
	EffectAttackDecay    // 20xy
	EffectSustainRelease // 21xy
)

type Effect struct {
	Type    EffectType
	Value   uint16
	Channel Channel // The channel column the effect was found in.
}

// pitchToFreq converts a Midi note number to a frequency, given a specific tuning of A4.
func pitchToFreq(pitch NotePitch, tuning float64) float64 {
	// For some reason, furnace notates the octaves as being two octaves *lower* than what they really sound like.
	// So we need to offset it by bumping the note pitch up two octaves before converting.
	offsetPitch := pitch + 24
	return tuning * math.Pow(2, float64(offsetPitch-69)/12)
}

// Pretty-print
func (s *Song) String() string {
	var b strings.Builder
	b.WriteString("Furnace Song:\n")
	fmt.Fprintf(&b, "- Name: %s\n", s.Name)
	fmt.Fprintf(&b, "- Author: %s\n", s.Author)
	if s.Album != "" {
		fmt.Fprintf(&b, "- Album: %s\n", s.Album)
	}
	fmt.Fprintf(&b, "- Furnace version: %d\n", s.Version)
	fmt.Fprintf(&b, "- Tuning: %0.2f Hz\n", s.Tuning)
	for _, chip := range s.SoundChips {
		fmt.Fprintf(&b, "- Chip #%d: %s (MOS %d", chip.Index, chip.Name, chip.Model)
		if chip.PAL {
			b.WriteString(", PAL)\n")
		} else {
			b.WriteString(", NTSC)\n")
		}
	}
	b.WriteString("- Subsongs:\n")
	for _, sub := range s.Subsongs {
		fmt.Fprintf(&b, "  - #%d %q: %d rows, tick rate %0.2f, speeds %v\n", sub.Index+1, sub.Name, len(sub.Rows), sub.TickRate, sub.Speeds)
	}
	return b.String()
}

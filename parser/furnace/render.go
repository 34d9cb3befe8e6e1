package furnace

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/QEStudios/SIDExporter/sid"
)

var ErrNoSubsong = errors.New("subsong does not exist")

// Register values every voice starts from before the first row plays.
const (
	defaultAttackDecay    byte   = 0x09
	defaultSustainRelease byte   = 0xF0
	defaultPulseWidth     uint16 = 0x0800
	defaultVolume         byte   = 0x0F
)

// Instrument numbers pick a waveform, cycling through these.
var instrumentWaveforms = [...]byte{
	sid.ControlPulse,
	sid.ControlTriangle,
	sid.ControlSawtooth,
	sid.ControlNoise,
}

// SubsongCount returns the number of subsongs in the song.
func (s *Song) SubsongCount() int {
	return len(s.Subsongs)
}

// SelectSubsong makes subsong i (0-based) the one RenderAll plays.
func (s *Song) SelectSubsong(i int) error {
	if i < 0 || i >= len(s.Subsongs) {
		return fmt.Errorf("%w: %d (song only contains %d subsongs)", ErrNoSubsong, i, len(s.Subsongs))
	}
	s.selected = i
	return nil
}

// SetPAL picks PAL (50 Hz) or NTSC (60 Hz) timing and clock for rendering.
func (s *Song) SetPAL(pal bool) {
	s.PAL = pal
}

func (s *Song) output() *log.Logger {
	if s.logger == nil {
		return log.Default()
	}
	return s.logger
}

// voice tracks what has been written to one SID voice so far.
type voice struct {
	waveform byte
	gate     bool
	sr       byte
}

func (v *voice) control() byte {
	if v.gate {
		return v.waveform | sid.ControlGate
	}
	return v.waveform
}

// renderer walks the rows of one subsong and turns them into timed register writes.
type renderer struct {
	rec     sid.Recorder
	elapsed float64 // Frames elapsed since the start of the subsong.
	voices  [sid.Voices]voice
}

func (r *renderer) frame() uint32 {
	return uint32(math.Floor(r.elapsed))
}

func (r *renderer) write(register uint8, value byte) {
	r.rec.Record(sid.ChipSID, sid.Address(register), value, r.frame())
}

func (r *renderer) writeVoice(v int, offset int, value byte) {
	r.write(sid.VoiceRegister(v, offset), value)
}

// RenderAll plays the selected subsong from its first row and sends every SID register write to rec.
// Rendering stops at the end of the rows, at a stop effect, or at the first backward jump (where
// Furnace would loop forever).
func (s *Song) RenderAll(rec sid.Recorder) error {
	if s.selected < 0 || s.selected >= len(s.Subsongs) {
		return fmt.Errorf("%w: %d", ErrNoSubsong, s.selected)
	}
	subsong := s.Subsongs[s.selected]
	logger := s.output()

	frameRate, clockRate := sid.FrameRateNTSC, sid.ClockNTSC
	if s.PAL {
		frameRate, clockRate = sid.FrameRatePAL, sid.ClockPAL
	}

	patternLength := int(subsong.PatternLength)
	if patternLength == 0 {
		patternLength = len(subsong.Rows)
	}

	speeds := subsong.Speeds
	if len(speeds) == 0 {
		speeds = []uint8{1}
	}
	tickRate := subsong.TickRate
	if tickRate <= 0 {
		return fmt.Errorf("subsong %d has an invalid tick rate %0.2f", s.selected, tickRate)
	}

	r := &renderer{rec: rec}

	r.write(sid.ModeVolume, defaultVolume)
	for v := range r.voices {
		r.voices[v] = voice{waveform: sid.ControlPulse, sr: defaultSustainRelease}
		r.writeVoice(v, sid.PulseWidthLo, byte(defaultPulseWidth&0xFF))
		r.writeVoice(v, sid.PulseWidthHi, byte(defaultPulseWidth>>8))
		r.writeVoice(v, sid.AttackDecay, defaultAttackDecay)
		r.writeVoice(v, sid.SustainRelease, defaultSustainRelease)
	}

	logger.Printf("Rendering subsong %d: %d rows at %0.3f frames per second", s.selected+1, len(subsong.Rows), frameRate)

	var isHalted bool // Does the song now halt? (used for breaking out of the loop)
	var isLooped bool // Does the song now loop back to an earlier point? (used for breaking out of the loop)
	speedIndex := 0

	for rowIndex := 0; rowIndex < len(subsong.Rows); {
		newIndex := rowIndex + 1
		row := subsong.Rows[rowIndex]

		// Effects that change timing or flow apply to the whole row.
		for _, effect := range row.Effects {
			switch effect.Type {
			case EffectJumpToPattern:
				currentPattern := rowIndex / patternLength
				if int(effect.Value) > currentPattern { // skip forward
					newIndex = int(effect.Value) * patternLength
				} else { // loop backward
					isLooped = true
				}

			case EffectJumpToNextPattern:
				currentPattern := rowIndex / patternLength
				newIndex = (currentPattern + 1) * patternLength

			case EffectSpeed:
				if effect.Value == 0 {
					continue
				}
				speeds = []uint8{uint8(effect.Value)}
				speedIndex = 0

			case EffectTickRateHz:
				if effect.Value > 0 {
					tickRate = float64(effect.Value)
				}

			case EffectTickRateBpm:
				if effect.Value > 0 {
					tickRate = float64(effect.Value) * 24 / 60 // Furnace assumes 24 ticks per beat.
				}

			case EffectStopSong:
				isHalted = true
			}
		}

		for _, note := range row.Notes {
			if int(note.Channel) >= sid.Voices {
				continue
			}
			r.note(note, clockRate, s.Tuning)
		}

		for _, effect := range row.Effects {
			if int(effect.Channel) >= sid.Voices {
				continue
			}
			r.voiceEffect(effect)
		}

		if isHalted || isLooped {
			break
		}

		ticks := float64(speeds[speedIndex%len(speeds)]) * float64(subsong.TimeBase+1)
		r.elapsed += ticks * frameRate / tickRate
		speedIndex++

		rowIndex = newIndex
	}

	// Advance past the last row so the release lands after it.
	if isHalted || isLooped {
		ticks := float64(speeds[speedIndex%len(speeds)]) * float64(subsong.TimeBase+1)
		r.elapsed += ticks * frameRate / tickRate
	}

	for v := range r.voices {
		if r.voices[v].gate {
			r.voices[v].gate = false
			r.writeVoice(v, sid.Control, r.voices[v].control())
		}
	}

	logger.Printf("Subsong %d lasts %d frames", s.selected+1, r.frame()+1)
	return nil
}

// note applies the pitch, instrument and volume columns of one cell.
func (r *renderer) note(note Note, clockRate float64, tuning float64) {
	v := int(note.Channel)
	vc := &r.voices[v]

	if note.HasInstrument {
		vc.waveform = instrumentWaveforms[int(note.Instrument)%len(instrumentWaveforms)]
	}

	if note.HasVolume {
		vc.sr = byte(note.Volume)<<4 | vc.sr&0x0F
		r.writeVoice(v, sid.SustainRelease, vc.sr)
	}

	if note.Off {
		if vc.gate {
			vc.gate = false
			r.writeVoice(v, sid.Control, vc.control())
		}
		return
	}

	if note.HasPitch {
		freq := sid.FrequencyRegister(pitchToFreq(note.Pitch, tuning), clockRate)
		r.writeVoice(v, sid.FreqLo, byte(freq))
		r.writeVoice(v, sid.FreqHi, byte(freq>>8))

		if vc.gate {
			// Retrigger the envelope.
			vc.gate = false
			r.writeVoice(v, sid.Control, vc.control())
		}
		vc.gate = true
		r.writeVoice(v, sid.Control, vc.control())
	}
}

// voiceEffect applies effects that target the voice of the column they were found in.
func (r *renderer) voiceEffect(effect Effect) {
	v := int(effect.Channel)
	vc := &r.voices[v]

	switch effect.Type {
	case EffectWaveform:
		vc.waveform = byte(effect.Value&0x0F) << 4
		r.writeVoice(v, sid.Control, vc.control())

	case EffectDutyCycle:
		pw := sid.PulseWidth(uint8(effect.Value))
		r.writeVoice(v, sid.PulseWidthLo, byte(pw))
		r.writeVoice(v, sid.PulseWidthHi, byte(pw>>8))

	case EffectAttackDecay:
		r.writeVoice(v, sid.AttackDecay, byte(effect.Value))

	case EffectSustainRelease:
		vc.sr = byte(effect.Value)
		r.writeVoice(v, sid.SustainRelease, vc.sr)
	}
}

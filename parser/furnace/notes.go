package furnace

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

/*
isValidPitchString returns true if the given pitch string is valid, otherwise returns false.

The pitch string is always 3 characters.
The first character of the pitch string should be a capital letter in the range of A-G.
The second character should be:

- '#' if the pitch is sharp and the octave is >= 0,

- '+' if the pitch is sharp and the octave is < 0,

- '-' if the pitch is natural and the octave is >= 0, or

- '_' if the pitch is natural and the octave is < 0.

The third character is a digit '0'..'9' representing the absolute value of the octave.
Negative octaves (where the second char == '+' or '_') are only allowed when that digit is <= 5.
(The overall octave range is -5 through 9.)
*/
func isValidPitchString(pitchString string) bool {
	// Pitch strings are always 3 characters long.
	if len(pitchString) != 3 {
		return false
	}

	upperString := strings.ToUpper(pitchString)
	first := upperString[0]
	second := upperString[1]
	third := upperString[2]

	// The first character must be a capital letter in the range A-G.
	if !(first >= 'A' && first <= 'G') {
		return false
	}

	// The third character must be an integer between 0 and 9.
	if third < '0' || third > '9' {
		return false
	}
	absoluteOctave := int(third - '0')

	// The second character must be '#', '+', '-' or '_'.
	// '+' and '_' are only valid if the absolute value of the octave is <= 5.
	switch second {
	case '#', '+', '-', '_':
		// ok
	default:
		return false
	}
	if (second == '+' || second == '_') && absoluteOctave > 5 {
		return false
	}

	return true
}

var noteBase = map[byte]int{
	'C': 0,
	'D': 2,
	'E': 4,
	'F': 5,
	'G': 7,
	'A': 9,
	'B': 11,
}

// parsePitchString parses a pitch string and returns a NotePitch.
func parsePitchString(pitchString string) (NotePitch, error) {
	// Ensure the pitch string follows the correct format.
	if !isValidPitchString(pitchString) {
		return NotePitch(0), fmt.Errorf("invalid pitch string '%s'", pitchString)
	}

	upperString := strings.ToUpper(pitchString)
	first := upperString[0]
	second := upperString[1]
	third := upperString[2]

	octave := int(third - '0')

	// Accidentals of '+' or '_' indicate a negative octave.
	if second == '+' || second == '_' {
		octave = -octave
	}

	accidental := 0
	if second == '#' || second == '+' {
		accidental = 1
	}

	midiNote := (octave+1)*12 + noteBase[first] + accidental
	return NotePitch(midiNote), nil
}

// parseVolumeString parses a volume string (a hex number 00 through 0F) and returns a NoteVolume.
func parseVolumeString(volumeString string) (NoteVolume, error) {
	if len(volumeString) != 2 || volumeString[0] != '0' {
		// Only volume values 00 through 0F are valid.
		return NoteVolume(0), fmt.Errorf("invalid volume string '%s'", volumeString)
	}

	volume, err := strconv.ParseUint(volumeString, 16, 4)
	if err != nil {
		return NoteVolume(0), fmt.Errorf("error parsing volume string: %w", err)
	}

	return NoteVolume(volume), nil
}

// parseInstrumentString parses a two digit hex instrument number.
func parseInstrumentString(instrumentString string) (uint8, error) {
	instrument, err := strconv.ParseUint(instrumentString, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid instrument string '%s'", instrumentString)
	}
	return uint8(instrument), nil
}

// isValidEffectString returns true if the given effect string is of a valid format.
// This means either .... for no change, or a hex number 0000 through FFFF.
func isValidEffectString(effectString string) bool {
	// Effect strings are always 4 characters long.
	if len(effectString) != 4 {
		return false
	}

	_, err := strconv.ParseUint(effectString[0:2], 16, 8)
	if err != nil {
		return false
	}
	if effectString[2:4] != ".." {
		_, err := strconv.ParseUint(effectString[2:4], 16, 8)
		if err != nil {
			return false
		}
	}

	return true
}

// parseEffectString parses an effect string and returns an Effect struct.
// Effects the sequencer doesn't handle are reported with ok=false.
func parseEffectString(effectString string) (effect Effect, ok bool, err error) {
	// Ensure the effect string follows the correct format.
	if !isValidEffectString(effectString) {
		return Effect{}, false, fmt.Errorf("invalid effect string '%s'", effectString)
	}

	effectId, err := strconv.ParseUint(effectString[0:2], 16, 8)
	if err != nil {
		return Effect{}, false, fmt.Errorf("error parsing effect string: %w", err)
	}

	var effectType EffectType
	var value uint64

	if effectId >= 0xC0 && effectId <= 0xCF {
		// Set tick rate (hz) effect is all effects 0xC0 through 0xCF,
		// as the value is 12 bit and rolls over into the first byte.
		effectType = EffectTickRateHz
		if effectString[2:4] == ".." {
			value, err = strconv.ParseUint(string(effectString[1]), 16, 4)
			value <<= 8
		} else {
			value, err = strconv.ParseUint(effectString[1:4], 16, 16)
		}
		if err != nil {
			return Effect{}, false, fmt.Errorf("error parsing effect string: %w", err)
		}
		return Effect{Type: effectType, Value: uint16(value)}, true, nil
	}

	switch effectId {
	case 0x0B:
		effectType = EffectJumpToPattern
	case 0x0D:
		effectType = EffectJumpToNextPattern
	case 0x09, 0x0F:
		effectType = EffectSpeed
	case 0x10:
		effectType = EffectWaveform
	case 0x12:
		effectType = EffectDutyCycle
	case 0x20:
		effectType = EffectAttackDecay
	case 0x21:
		effectType = EffectSustainRelease
	case 0xF0:
		effectType = EffectTickRateBpm
	case 0xFF:
		effectType = EffectStopSong
	default:
		return Effect{}, false, nil
	}

	if effectString[2:4] != ".." {
		value, err = strconv.ParseUint(effectString[2:4], 16, 8)
		if err != nil {
			return Effect{}, false, fmt.Errorf("error parsing effect string: %w", err)
		}
	}

	return Effect{Type: effectType, Value: uint16(value)}, true, nil
}

// parseNote accepts a note string, which is a combination of a pitch, instrument, volume,
// and any number of effects, and returns a Note struct defining that note, a slice of
// effects (which may contain no effects), the effect strings that were skipped because
// they aren't supported, and an error if something went wrong.
func parseNote(noteString string) (Note, []Effect, []string, error) {

	// Remove any whitespace
	cleanedNoteString := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, noteString)

	// Make sure note strings are a valid length.
	// 3 (pitch) + 2 (instrument) + 2 (volume) + 4 for every effect (minimum 1 effect).
	if len(cleanedNoteString) < 11 || (len(cleanedNoteString)-11)%4 != 0 {
		return Note{}, nil, nil, fmt.Errorf("invalid note string: %s", noteString)
	}

	pitchString := cleanedNoteString[0:3]
	instrumentString := cleanedNoteString[3:5]
	volumeString := cleanedNoteString[5:7]

	var err error
	var note Note

	switch pitchString {
	case "...":
	case "OFF", "===", "REL":
		note.Off = true
	default:
		note.Pitch, err = parsePitchString(pitchString)
		if err != nil {
			return Note{}, nil, nil, err
		}
		note.HasPitch = true
	}

	if instrumentString != ".." {
		note.Instrument, err = parseInstrumentString(instrumentString)
		if err != nil {
			return Note{}, nil, nil, err
		}
		note.HasInstrument = true
	}

	if volumeString != ".." {
		note.Volume, err = parseVolumeString(volumeString)
		if err != nil {
			return Note{}, nil, nil, err
		}
		note.HasVolume = true
	}

	var effects []Effect
	var unsupported []string

	for i := 7; i < len(cleanedNoteString); i += 4 {
		effectString := cleanedNoteString[i : i+4]
		if effectString == "...." {
			// Don't store empty effects.
			continue
		}
		effect, ok, err := parseEffectString(effectString)
		if err != nil {
			return Note{}, nil, nil, err
		}
		if !ok {
			unsupported = append(unsupported, effectString)
			continue
		}
		effects = append(effects, effect)
	}

	return note, effects, unsupported, nil
}

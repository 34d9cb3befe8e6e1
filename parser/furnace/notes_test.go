package furnace

import (
	"reflect"
	"testing"
)

func TestParsePitchString(t *testing.T) {
	tests := []struct {
		in   string
		want NotePitch
		ok   bool
	}{
		{"C-4", 60, true},
		{"A-4", 69, true},
		{"C#4", 61, true},
		{"c-0", 12, true},
		{"C_1", 0, true},
		{"B+5", -36, true},
		{"H-4", 0, false},
		{"C_6", 0, false},
		{"C-", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePitchString(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("parsePitchString(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			}
			if tt.ok && got != tt.want {
				t.Errorf("parsePitchString(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseEffectString(t *testing.T) {
	tests := []struct {
		in   string
		want Effect
		ok   bool
	}{
		{"0B02", Effect{Type: EffectJumpToPattern, Value: 2}, true},
		{"0D..", Effect{Type: EffectJumpToNextPattern}, true},
		{"0F06", Effect{Type: EffectSpeed, Value: 6}, true},
		{"C032", Effect{Type: EffectTickRateHz, Value: 0x032}, true},
		{"C1..", Effect{Type: EffectTickRateHz, Value: 0x100}, true},
		{"1004", Effect{Type: EffectWaveform, Value: 4}, true},
		{"1208", Effect{Type: EffectDutyCycle, Value: 8}, true},
		{"2019", Effect{Type: EffectAttackDecay, Value: 0x19}, true},
		{"21A4", Effect{Type: EffectSustainRelease, Value: 0xA4}, true},
		{"F096", Effect{Type: EffectTickRateBpm, Value: 0x96}, true},
		{"FF..", Effect{Type: EffectStopSong}, true},
		{"E500", Effect{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := parseEffectString(tt.in)
			if err != nil {
				t.Fatalf("parseEffectString(%q): %v", tt.in, err)
			}
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseEffectString(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}

	for _, bad := range []string{"0B0", "ZZ00", "0BZZ"} {
		if _, _, err := parseEffectString(bad); err == nil {
			t.Errorf("parseEffectString(%q) should fail", bad)
		}
	}
}

func TestParseNote(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		note        Note
		effects     []Effect
		unsupported []string
	}{
		{
			name: "empty cell",
			in:   "... .. .. ....",
		},
		{
			name: "full cell",
			in:   "E-4 02 0A 1204",
			note: Note{
				Pitch: 64, HasPitch: true,
				Instrument: 2, HasInstrument: true,
				Volume: 0x0A, HasVolume: true,
			},
			effects: []Effect{{Type: EffectDutyCycle, Value: 4}},
		},
		{
			name: "note off",
			in:   "OFF .. .. ....",
			note: Note{Off: true},
		},
		{
			name: "release",
			in:   "REL .. .. ....",
			note: Note{Off: true},
		},
		{
			name:        "several effects",
			in:          "... .. .. 0F03 E500 FF..",
			effects:     []Effect{{Type: EffectSpeed, Value: 3}, {Type: EffectStopSong}},
			unsupported: []string{"E500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, effects, unsupported, err := parseNote(tt.in)
			if err != nil {
				t.Fatalf("parseNote(%q): %v", tt.in, err)
			}
			if note != tt.note {
				t.Errorf("note = %+v, want %+v", note, tt.note)
			}
			if !reflect.DeepEqual(effects, tt.effects) {
				t.Errorf("effects = %+v, want %+v", effects, tt.effects)
			}
			if !reflect.DeepEqual(unsupported, tt.unsupported) {
				t.Errorf("unsupported = %v, want %v", unsupported, tt.unsupported)
			}
		})
	}

	for _, bad := range []string{"C-4 00", "X-4 00 .. ....", "C-4 00 1F ....", "C-4 00 .. ...."[:13]} {
		if _, _, _, err := parseNote(bad); err == nil {
			t.Errorf("parseNote(%q) should fail", bad)
		}
	}
}

func TestPitchToFreq(t *testing.T) {
	// Furnace's C-4 sounds two octaves up, A-2 is concert A.
	if got := pitchToFreq(45, 440); got != 440 {
		t.Errorf("pitchToFreq(A-2) = %v, want 440", got)
	}
}

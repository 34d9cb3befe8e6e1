package furnace

import (
	"errors"
	"testing"

	"github.com/QEStudios/SIDExporter/export"
	"github.com/QEStudios/SIDExporter/sid"
	"github.com/davecgh/go-spew/spew"
)

// writesTo returns the captured writes that hit one register.
func writesTo(log sid.WriteLog, register uint8) sid.WriteLog {
	var out sid.WriteLog
	for _, w := range log {
		if w.Register == register {
			out = append(out, w)
		}
	}
	return out
}

func render(t *testing.T, song *Song, subsong int) sid.WriteLog {
	t.Helper()
	if err := song.SelectSubsong(subsong); err != nil {
		t.Fatalf("SelectSubsong(%d): %v", subsong, err)
	}
	capture := sid.NewCapture()
	if err := song.RenderAll(capture); err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	return capture.Log()
}

func sameWrites(got, want sid.WriteLog) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRenderIntro(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")
	log := render(t, song, 0)

	// 6 ticks at 50 Hz is 6.015 PAL frames per row.
	control := sid.VoiceRegister(0, sid.Control)
	want := sid.WriteLog{
		{Frame: 0, Register: control, Value: sid.ControlPulse | sid.ControlGate},
		{Frame: 6, Register: control, Value: sid.ControlPulse},
		{Frame: 12, Register: control, Value: sid.ControlTriangle | sid.ControlGate},
		{Frame: 24, Register: control, Value: sid.ControlTriangle},
	}
	if got := writesTo(log, control); !sameWrites(got, want) {
		t.Errorf("voice 1 control writes:\n%s\nwant:\n%s", spew.Sdump(got), spew.Sdump(want))
	}

	freq := sid.FrequencyRegister(pitchToFreq(60, 440), sid.ClockPAL)
	lo := writesTo(log, sid.VoiceRegister(0, sid.FreqLo))
	hi := writesTo(log, sid.VoiceRegister(0, sid.FreqHi))
	if len(lo) != 2 || lo[0].Value != byte(freq) || hi[0].Value != byte(freq>>8) {
		t.Errorf("C-4 should set the frequency to $%04X, got lo %v hi %v", freq, lo, hi)
	}

	// Volume F on the note keeps the sustain at F.
	sr := writesTo(log, sid.VoiceRegister(0, sid.SustainRelease))
	if last := sr[len(sr)-1]; last.Value != 0xF0 {
		t.Errorf("sustain/release = $%02X, want $F0", last.Value)
	}

	pw := writesTo(log, sid.VoiceRegister(1, sid.PulseWidthHi))
	if last := pw[len(pw)-1]; last.Frame != 0 || last.Value != 0x04 {
		t.Errorf("voice 2 pulse width high = %v, want $04 in frame 0", last)
	}

	if log[0] != (sid.RegisterWrite{Frame: 0, Register: sid.ModeVolume, Value: 0x0F}) {
		t.Errorf("first write should set the master volume, got %v", log[0])
	}
	for i := 1; i < len(log); i++ {
		if log[i].Frame < log[i-1].Frame {
			t.Fatalf("writes out of order at %d: %v after %v", i, log[i], log[i-1])
		}
	}
}

func TestRenderNTSC(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")
	song.PAL = false
	log := render(t, song, 0)

	// 6 ticks at 50 Hz is 7.18 NTSC frames.
	control := writesTo(log, sid.VoiceRegister(0, sid.Control))
	if len(control) < 2 || control[1].Frame != 7 {
		t.Errorf("note off should land in frame 7:\n%s", spew.Sdump(control))
	}

	freq := sid.FrequencyRegister(pitchToFreq(60, 440), sid.ClockNTSC)
	if lo := writesTo(log, sid.VoiceRegister(0, sid.FreqLo)); lo[0].Value != byte(freq) {
		t.Errorf("NTSC frequency low = $%02X, want $%02X", lo[0].Value, byte(freq))
	}
}

func TestRenderLoopStops(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")
	log := render(t, song, 1)

	// Groove 3 6 at 60 Hz: the loop row starts at frame 2.5 and lasts 5 frames.
	control := sid.VoiceRegister(0, sid.Control)
	want := sid.WriteLog{
		{Frame: 0, Register: control, Value: sid.ControlSawtooth | sid.ControlGate},
		{Frame: 7, Register: control, Value: sid.ControlSawtooth},
	}
	if got := writesTo(log, control); !sameWrites(got, want) {
		t.Errorf("voice 1 control writes:\n%s\nwant:\n%s", spew.Sdump(got), spew.Sdump(want))
	}
}

func TestRenderIsRepeatable(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")
	first := render(t, song, 0)
	render(t, song, 1)
	again := render(t, song, 0)
	if !sameWrites(first, again) {
		t.Error("rendering the same subsong twice gave different writes")
	}
}

func TestSelectSubsongOutOfRange(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")
	for _, i := range []int{-1, 2} {
		if err := song.SelectSubsong(i); !errors.Is(err, ErrNoSubsong) {
			t.Errorf("SelectSubsong(%d) = %v, want ErrNoSubsong", i, err)
		}
	}
}

func TestCompileSong(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")

	cfg := export.DefaultConfig()
	cfg.ExportAll = true
	cfg.Resize(song.SubsongCount())

	data, err := export.Compile(song, cfg, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	file, err := sid.ParseFile(data)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if file.Header.Songs != 2 {
		t.Fatalf("header lists %d songs, want 2", file.Header.Songs)
	}
	for i := range file.Songs {
		if want := render(t, song, i); !sameWrites(file.Songs[i], want) {
			t.Errorf("subsong %d stream doesn't decode to its rendering", i+1)
		}
	}
}

// effectSong is a PAL subsong at 50 Hz, speed 6 and 4 rows per pattern, so
// every row lasts 6.015 frames unless an effect changes that.
func effectSong(rows ...Row) *Song {
	for i := range rows {
		rows[i].Index = i
	}
	return &Song{
		Tuning: 440,
		PAL:    true,
		Subsongs: []*Subsong{{
			TickRate:      50,
			PatternLength: 4,
			Speeds:        []uint8{6},
			Rows:          rows,
		}},
		logger: quiet,
	}
}

func effectRow(effects ...Effect) Row {
	return Row{Effects: effects}
}

func TestRenderInitialState(t *testing.T) {
	log := render(t, effectSong(Row{}), 0)

	for v := 0; v < sid.Voices; v++ {
		for _, want := range []sid.RegisterWrite{
			{Frame: 0, Register: sid.VoiceRegister(v, sid.PulseWidthLo), Value: 0x00},
			{Frame: 0, Register: sid.VoiceRegister(v, sid.PulseWidthHi), Value: 0x08},
			{Frame: 0, Register: sid.VoiceRegister(v, sid.AttackDecay), Value: 0x09},
			{Frame: 0, Register: sid.VoiceRegister(v, sid.SustainRelease), Value: 0xF0},
		} {
			if got := writesTo(log, want.Register); !sameWrites(got, sid.WriteLog{want}) {
				t.Errorf("voice %d register $%02X:\n%s\nwant:\n%s", v+1, want.Register, spew.Sdump(got), spew.Sdump(want))
			}
		}
	}
}

func TestRenderEffects(t *testing.T) {
	ad := func(v int) uint8 { return sid.VoiceRegister(v, sid.AttackDecay) }
	setAD := func(value uint16) Effect { return Effect{Type: EffectAttackDecay, Value: value} }

	tests := []struct {
		name     string
		rows     []Row
		register uint8
		want     sid.WriteLog // Every write to register, including the initial one.
	}{
		{
			name: "10xx waveform",
			rows: []Row{
				{},
				effectRow(Effect{Type: EffectWaveform, Value: 0x02}),
			},
			register: sid.VoiceRegister(0, sid.Control),
			want: sid.WriteLog{
				{Frame: 6, Register: sid.VoiceRegister(0, sid.Control), Value: sid.ControlSawtooth},
			},
		},
		{
			name: "20xy attack/decay",
			rows: []Row{
				{},
				effectRow(Effect{Type: EffectAttackDecay, Value: 0x4A, Channel: 1}),
			},
			register: ad(1),
			want: sid.WriteLog{
				{Frame: 0, Register: ad(1), Value: 0x09},
				{Frame: 6, Register: ad(1), Value: 0x4A},
			},
		},
		{
			name: "21xy sustain/release",
			rows: []Row{
				{},
				{},
				effectRow(Effect{Type: EffectSustainRelease, Value: 0xC3, Channel: 2}),
			},
			register: sid.VoiceRegister(2, sid.SustainRelease),
			want: sid.WriteLog{
				{Frame: 0, Register: sid.VoiceRegister(2, sid.SustainRelease), Value: 0xF0},
				{Frame: 12, Register: sid.VoiceRegister(2, sid.SustainRelease), Value: 0xC3},
			},
		},
		{
			name: "0Fxx speed",
			rows: []Row{
				effectRow(Effect{Type: EffectSpeed, Value: 3}),
				effectRow(setAD(0x11)),
			},
			register: ad(0),
			want: sid.WriteLog{
				{Frame: 0, Register: ad(0), Value: 0x09},
				{Frame: 3, Register: ad(0), Value: 0x11},
			},
		},
		{
			name: "C0xx tick rate",
			rows: []Row{
				effectRow(Effect{Type: EffectTickRateHz, Value: 25}),
				effectRow(setAD(0x22)),
			},
			register: ad(0),
			want: sid.WriteLog{
				{Frame: 0, Register: ad(0), Value: 0x09},
				{Frame: 12, Register: ad(0), Value: 0x22},
			},
		},
		{
			name: "F0xx tempo",
			rows: []Row{
				// 250 BPM is 100 ticks per second.
				effectRow(Effect{Type: EffectTickRateBpm, Value: 250}),
				effectRow(setAD(0x33)),
			},
			register: ad(0),
			want: sid.WriteLog{
				{Frame: 0, Register: ad(0), Value: 0x09},
				{Frame: 3, Register: ad(0), Value: 0x33},
			},
		},
		{
			name: "0Dxx next pattern",
			rows: []Row{
				effectRow(Effect{Type: EffectJumpToNextPattern}),
				effectRow(setAD(0x01)),
				effectRow(setAD(0x02)),
				effectRow(setAD(0x03)),
				effectRow(setAD(0x44)),
			},
			register: ad(0),
			want: sid.WriteLog{
				{Frame: 0, Register: ad(0), Value: 0x09},
				{Frame: 6, Register: ad(0), Value: 0x44},
			},
		},
		{
			name: "0Bxx forward jump",
			rows: []Row{
				effectRow(Effect{Type: EffectJumpToPattern, Value: 2}),
				effectRow(setAD(0x01)), {}, {}, effectRow(setAD(0x04)),
				{}, {}, {},
				effectRow(setAD(0x88)),
			},
			register: ad(0),
			want: sid.WriteLog{
				{Frame: 0, Register: ad(0), Value: 0x09},
				{Frame: 6, Register: ad(0), Value: 0x88},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := render(t, effectSong(tt.rows...), 0)
			if got := writesTo(log, tt.register); !sameWrites(got, tt.want) {
				t.Errorf("writes to $%02X:\n%s\nwant:\n%s", tt.register, spew.Sdump(got), spew.Sdump(tt.want))
			}
		})
	}
}

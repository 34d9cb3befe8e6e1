package furnace

import (
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

var quiet = log.New(io.Discard, "", 0)

func parseFixture(t *testing.T, name string) (*Song, *Parser) {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	p := NewParser(f, quiet)
	song, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return song, p
}

// minimalSong returns a complete text export with a single chip and a single one-row subsong.
func minimalSong(chip string, songInfo string) string {
	return `# Furnace Text Export

generated by Furnace 0.6.8.1 (232)

# Song Information

` + songInfo + `

# Sound Chips

- ` + chip + `
  - id: 47
  - flags:
` + "```" + `
clockSel=0
` + "```" + `

# Instruments

# Subsongs

## 0: 

- tick rate: 60
- speeds: 6
- time base: 0
- pattern length: 1

orders:

## Patterns

----- ORDER 00
00 |C-4 00 .. ....|... .. .. ....|... .. .. ....
`
}

const fullSongInfo = "- name: Mini\n- author: Tester\n- tuning: 440"

func hasWarning(warnings []ParseWarning, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

func TestParseFixture(t *testing.T) {
	song, p := parseFixture(t, "twosongs.txt")

	if song.Name != "Test Tune" || song.Author != "Tester" || song.Album != "Fixtures" {
		t.Errorf("song info = %q / %q / %q", song.Name, song.Author, song.Album)
	}
	if song.Version != 232 {
		t.Errorf("Version = %d, want 232", song.Version)
	}
	if song.Tuning != 440 {
		t.Errorf("Tuning = %v, want 440", song.Tuning)
	}

	if len(song.SoundChips) != 1 {
		t.Fatalf("got %d chips, want 1:\n%s", len(song.SoundChips), spew.Sdump(song.SoundChips))
	}
	chip := song.SoundChips[0]
	if chip.Model != 6581 || !chip.PAL {
		t.Errorf("chip = %+v, want a PAL 6581", *chip)
	}
	if !song.PAL {
		t.Error("song should render as PAL, following its first chip")
	}

	if song.SubsongCount() != 2 {
		t.Fatalf("SubsongCount() = %d, want 2", song.SubsongCount())
	}

	intro := song.Subsongs[0]
	if intro.Name != "Intro" || intro.TickRate != 50 || intro.PatternLength != 4 || len(intro.Rows) != 4 {
		t.Errorf("intro parsed wrong:\n%s", spew.Sdump(intro))
	}
	if len(intro.Speeds) != 1 || intro.Speeds[0] != 6 {
		t.Errorf("intro speeds = %v, want [6]", intro.Speeds)
	}

	first := intro.Rows[0]
	if len(first.Notes) != 3 {
		t.Fatalf("row 0 has %d notes, want 3", len(first.Notes))
	}
	lead := first.Notes[0]
	if !lead.HasPitch || lead.Pitch != 60 || !lead.HasInstrument || lead.Instrument != 0 || !lead.HasVolume || lead.Volume != 0x0F {
		t.Errorf("row 0 lead note = %+v", lead)
	}
	if len(first.Effects) != 1 || first.Effects[0] != (Effect{Type: EffectDutyCycle, Value: 4, Channel: 1}) {
		t.Errorf("row 0 effects = %+v", first.Effects)
	}
	if !intro.Rows[1].Notes[0].Off {
		t.Error("row 1 should hold a note off")
	}

	loop := song.Subsongs[1]
	if loop.Name != "Loop" || loop.TickRate != 60 || len(loop.Rows) != 2 {
		t.Errorf("loop parsed wrong:\n%s", spew.Sdump(loop))
	}
	if len(loop.Speeds) != 2 || loop.Speeds[0] != 3 || loop.Speeds[1] != 6 {
		t.Errorf("loop speeds = %v, want [3 6]", loop.Speeds)
	}
	if got := len(loop.Rows[0].Notes); got != 3 {
		t.Errorf("extra channels should be dropped, row has %d notes", got)
	}

	warnings := p.Warnings()
	if !hasWarning(warnings, "unsupported effect E500") {
		t.Errorf("missing unsupported effect warning in %v", warnings)
	}
	if !hasWarning(warnings, "more than 3 channels") {
		t.Errorf("missing extra channel warning in %v", warnings)
	}
}

func TestParseTruncated(t *testing.T) {
	f, err := os.Open("testdata/truncated.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	_, err = NewParser(f, quiet).Parse()
	if err == nil || !strings.Contains(err.Error(), "unexpected EOF") {
		t.Fatalf("Parse error = %v, want unexpected EOF", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "missing author",
			input: minimalSong("Commodore 64 (6581)", "- name: Mini\n- tuning: 440"),
			want:  "missing fields in Song Information section: author",
		},
		{
			name:  "bad version",
			input: "# Furnace Text Export\ngenerated by Furnace 0.6 (abc)\n",
			want:  "line 2: invalid integer",
		},
		{
			name:  "no chips",
			input: "# Furnace Text Export\ngenerated by Furnace 0.6 (232)\n- name: a\n- author: b\n- tuning: 440\n# Sound Chips\n# Instruments\n",
			want:  "no sound chips",
		},
		{
			name:  "bad tuning",
			input: minimalSong("Commodore 64 (6581)", "- name: Mini\n- author: Tester\n- tuning: loud"),
			want:  "song tuning",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(strings.NewReader(tt.input), quiet).Parse()
			if err == nil {
				t.Fatalf("expected an error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestParseChipModels(t *testing.T) {
	tests := []struct {
		chip    string
		model   int
		warning string
	}{
		{chip: "Commodore 64 (6581)", model: 6581},
		{chip: "Commodore 64 (8580)", model: 8580},
		{chip: "Yamaha YM2612", model: 6581, warning: "expected a Commodore 64 SID"},
	}

	for _, tt := range tests {
		t.Run(tt.chip, func(t *testing.T) {
			p := NewParser(strings.NewReader(minimalSong(tt.chip, fullSongInfo)), quiet)
			song, err := p.Parse()
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := song.SoundChips[0].Model; got != tt.model {
				t.Errorf("Model = %d, want %d", got, tt.model)
			}
			if song.PAL {
				t.Error("clockSel=0 should give an NTSC song")
			}
			if tt.warning != "" && !hasWarning(p.Warnings(), tt.warning) {
				t.Errorf("missing warning %q in %v", tt.warning, p.Warnings())
			}
		})
	}
}

func TestParserUsedTwice(t *testing.T) {
	p := NewParser(strings.NewReader(minimalSong("Commodore 64 (6581)", fullSongInfo)), quiet)
	if _, err := p.Parse(); err != nil {
		t.Fatalf("first Parse: %v", err)
	}
	if _, err := p.Parse(); err == nil {
		t.Fatal("second Parse should fail")
	}
}

func TestParseSpeedsList(t *testing.T) {
	p := NewParser(strings.NewReader(""), quiet)

	got, err := p.parseSpeedsList("6 3 4")
	if err != nil || len(got) != 3 || got[0] != 6 || got[2] != 4 {
		t.Errorf("parseSpeedsList = %v, %v", got, err)
	}

	for _, bad := range []string{"", "0", "256", "x"} {
		if _, err := p.parseSpeedsList(bad); err == nil {
			t.Errorf("parseSpeedsList(%q) should fail", bad)
		}
	}

	long := strings.Repeat("1 ", 20)
	got, err = p.parseSpeedsList(long)
	if err != nil || len(got) != 16 {
		t.Errorf("parseSpeedsList of 20 values = %d values, %v", len(got), err)
	}
	if len(p.Warnings()) != 1 {
		t.Errorf("expected one warning for the long list, got %v", p.Warnings())
	}
}

func TestSongString(t *testing.T) {
	song, _ := parseFixture(t, "twosongs.txt")
	out := song.String()
	for _, want := range []string{"- Name: Test Tune", "MOS 6581, PAL", `#2 "Loop": 2 rows`} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
}

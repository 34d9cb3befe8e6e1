package furnace

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// A struct to store a range of Furnace version numbers, used for checking version compatibility for the text exports.
type versionRange struct {
	min, max int
}

// A slice containing the compatible versions of Furnace text exports that this parser can handle.
var supportedRanges = []versionRange{
	{228, 232},
}

// isVersionSupported checks if the given Furnace version number is supported by this parser, and returns true if it is, else it returns false.
func isVersionSupported(version int) bool {
	for _, r := range supportedRanges {
		if version >= r.min && version <= r.max {
			return true
		}
	}
	return false
}

// The number of pattern columns the SID contributes to a row.
const sidChannels = 3

// A key and a value, used for key-value list elements.
type listElement struct {
	key   string
	value string
}

// Small struct for non-fatal warnings
type ParseWarning struct {
	Line    int
	Message string
}

func (pi ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s", pi.Line, pi.Message)
}

type Parser struct {
	scanner    *bufio.Scanner
	logger     *log.Logger
	lineNumber int
	state      string
	song       Song

	// Collect any warnings whilst parsing.
	warnings []ParseWarning

	// Generic per-state context storage.
	stateCtx map[string]any

	// Whether or not the parser has already been used.
	// Parsing can only be done once per Parser.
	used bool
}

type ParseResult struct {
	Song     *Song
	Warnings []ParseWarning
}

// NewParser creates a new parser to parse a file.
func NewParser(r io.Reader, logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.Default()
	}
	song := Song{
		Version: 0,
		Name:    "Unnamed",
		Author:  "Unknown",
		Album:   "",
		Tuning:  440,
		PAL:     true,
		logger:  logger,
	}
	return &Parser{
		scanner:  bufio.NewScanner(r),
		logger:   logger,
		state:    "signature", // Parser starts looking for the signature initially.
		song:     song,
		stateCtx: make(map[string]any),
	}
}

// addWarning adds to the list of warnings encountered when parsing.
func (p *Parser) addWarning(format string, args ...any) {
	p.warnings = append(p.warnings, ParseWarning{
		Line:    p.lineNumber,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *Parser) fatalf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.lineNumber, fmt.Sprintf(format, args...))
}

// Parses a line containing a list element into a ListElement struct.
func parseListElement(s string) (*listElement, error) {
	idx := strings.Index(s, ":")
	if idx == -1 {
		return nil, fmt.Errorf("invalid list element: %s", s)
	}

	key := strings.TrimSpace(s[:idx])
	value := strings.TrimSpace(s[idx+1:])

	key, found := strings.CutPrefix(key, "- ")
	if !found {
		return nil, fmt.Errorf("invalid list element: %s", s)
	}

	return &listElement{key: key, value: value}, nil
}

// parseSpeedsList parses a string containing 1..16 positive non-zero integers
// separated by whitespace. It returns a slice of each parsed speed.
func (p *Parser) parseSpeedsList(s string) ([]uint8, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("expected 1..16 numbers, got none")
	}

	if len(tokens) > 16 {
		p.addWarning("speeds list contains %d numbers, only first 16 will be used", len(tokens))
	}

	count := min(16, len(tokens))

	out := make([]uint8, 0, count)
	for i := 0; i < count; i++ {
		token := tokens[i]
		v, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("token %d (%q) in speeds list is not a valid integer: %w", i+1, token, err)
		}
		if v <= 0 || v >= 256 {
			return nil, fmt.Errorf("token %d (%q) in speeds list must be in the range 1..255", i+1, token)
		}

		out = append(out, uint8(v))
	}

	return out, nil
}

// setState saves an arbitrary value for a given state name.
func (p *Parser) setState(name string, v any) {
	p.stateCtx[name] = v
}

// getState returns the stored value for name and whether it existed.
// Usage: st, ok := getState[*boolMap](p, "song information")
func getState[T any](p *Parser, name string) (T, bool) {
	var zero T
	v, ok := p.stateCtx[name]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (p *Parser) getCurrentChip() *SoundChip {
	if len(p.song.SoundChips) == 0 {
		return nil
	}
	return p.song.SoundChips[len(p.song.SoundChips)-1]
}

func (p *Parser) getCurrentSubsong() *Subsong {
	if len(p.song.Subsongs) == 0 {
		return nil
	}
	return p.song.Subsongs[len(p.song.Subsongs)-1]
}

type boolMap struct {
	Ctx map[string]bool
}

// missingFields returns the keys of st that haven't been seen, skipping the given
// bookkeeping keys, and resets every seen flag for the next block.
func missingFields(st *boolMap, skip ...string) []string {
	var missing []string
	for key, seen := range st.Ctx {
		if isOneOf(key, skip) {
			continue
		}
		if !seen {
			missing = append(missing, key)
		}
		st.Ctx[key] = false // Reset seen flag
	}
	return missing
}

func isOneOf(s string, list []string) bool {
	for _, l := range list {
		if s == l {
			return true
		}
	}
	return false
}

// isChipHeader returns whether the line starts a new chip in the Sound Chips section,
// i.e. "- Commodore 64 (6581)": a list item without a key.
func isChipHeader(line string) bool {
	return strings.HasPrefix(line, "- ") && !strings.Contains(line, ":")
}

// startChip adds a chip named by a chip header line.
func (p *Parser) startChip(line string) {
	name := strings.TrimPrefix(line, "- ")
	chip := &SoundChip{
		Index: len(p.song.SoundChips),
		Name:  name,
		Model: 6581,
	}
	if strings.Contains(name, "8580") {
		chip.Model = 8580
	}
	p.song.SoundChips = append(p.song.SoundChips, chip)

	if !strings.Contains(name, "Commodore 64") {
		if chip.Index == 0 {
			p.addWarning("first chip is %q, expected a Commodore 64 SID. Its first %d channels will be rendered as SID voices", name, sidChannels)
		} else {
			p.addWarning("chip %d (%s) isn't a SID, its channels are ignored", chip.Index+1, name)
		}
	}
}

func (p *Parser) parseInternal() (*ParseResult, error) {
	if p.used {
		return nil, fmt.Errorf("parser already used")
	}
	p.used = true
	ignoredColumns := false

	for p.scanner.Scan() {
		p.lineNumber++
		line := p.scanner.Text()
		trimmedLine := strings.TrimSpace(line)

		// Blank lines are always ignored regardless of location in the file.
		if trimmedLine == "" {
			continue
		}

		switch p.state {
		// The very top of the file where the Furnace signature "# Furnace Text Export" is found.
		case "signature":
			if trimmedLine == "# Furnace Text Export" {
				p.state = "version"
				continue
			}
			p.addWarning("unexpected text found in file when looking for Furnace signature: %s", trimmedLine)

		// Right under the Furnace signature, the Furnace version number should be present.
		case "version":
			if strings.HasPrefix(trimmedLine, "generated by Furnace ") {
				parts := strings.Fields(trimmedLine)
				last := parts[len(parts)-1] // Should be the version integer.
				numStr := strings.Trim(last, "()")
				version, err := strconv.Atoi(numStr)

				if err != nil {
					return nil, p.fatalf("invalid integer found in Furnace version number: %s", numStr)
				}

				if !isVersionSupported(version) {
					p.addWarning("Furnace version number %d isn't officially supported by this program. some things might not work correctly", version)
				}

				p.song.Version = version
				p.logger.Printf("Furnace version %d detected", version)

				p.setState("song information", &boolMap{
					Ctx: map[string]bool{
						"name":   false,
						"author": false,
						"tuning": false,
					},
				})

				p.state = "song information"
				continue
			}
			return nil, p.fatalf("unexpected text found in file when looking for Furnace version: %s", trimmedLine)

		case "song information":
			if trimmedLine == "# Song Information" { // Section header.
				continue
			}

			if trimmedLine == "# Sound Chips" { // Next section, check that we've seen everything we need to.
				st, ok := getState[*boolMap](p, "song information")
				if !ok {
					return nil, p.fatalf("internal error: song info state missing")
				}
				if missing := missingFields(st); len(missing) > 0 {
					return nil, p.fatalf("missing fields in Song Information section: %s", strings.Join(missing, ", "))
				}

				p.setState("sound chips", &boolMap{
					Ctx: map[string]bool{
						"parsingChip":  false, // Should be set to true if we are in the middle of parsing a chip
						"parsingFlags": false, // Should be set to true if we are in the middle of parsing chip flags
						"id":           false,
						"flags":        false,
					},
				})

				p.state = "sound chips"
				continue
			}

			le, err := parseListElement(trimmedLine)
			if err != nil {
				return nil, p.fatalf("error parsing list element when extracting song information: %s", trimmedLine)
			}

			st, _ := getState[*boolMap](p, "song information")
			switch le.key {
			case "name":
				p.song.Name = le.value
				st.Ctx["name"] = true
			case "author":
				p.song.Author = le.value
				st.Ctx["author"] = true
			case "album":
				p.song.Album = le.value
			case "tuning":
				tuning, err := strconv.ParseFloat(le.value, 64)
				if err != nil {
					return nil, p.fatalf("error converting song tuning in text file to a number: %s", le.value)
				}
				p.song.Tuning = tuning
				st.Ctx["tuning"] = true
			case "system", "instruments", "wavetables", "samples":
				// Ignore; not important.
			default:
				p.addWarning("unknown option in Song Information section: %s", le.key)
			}

		case "sound chips":
			if trimmedLine == "# Sound Chips" { // Section header.
				continue
			}

			st, _ := getState[*boolMap](p, "sound chips")

			if trimmedLine == "# Instruments" { // Next section, check that we've seen everything we need to.
				if st.Ctx["parsingFlags"] {
					p.addWarning("didn't finish parsing chip properly in Sound Chips section. This could be because there were no flags present on a chip")
				}

				if st.Ctx["parsingChip"] {
					if missing := missingFields(st, "parsingChip", "parsingFlags"); len(missing) > 0 {
						return nil, p.fatalf("missing fields in Sound Chips section: %s", strings.Join(missing, ", "))
					}
				}

				if len(p.song.SoundChips) == 0 {
					return nil, p.fatalf("no sound chips were found by the parser")
				}

				// The song renders at the first chip's clock unless told otherwise.
				p.song.PAL = p.song.SoundChips[0].PAL

				p.state = "instruments/wavetables/samples"
				continue
			} else if st.Ctx["parsingFlags"] {
				if trimmedLine == "```" {
					st.Ctx["parsingFlags"] = false
					continue
				}
				kv := strings.SplitN(trimmedLine, "=", 2)
				if len(kv) != 2 {
					return nil, p.fatalf("invalid chip flag: %s", trimmedLine)
				}
				key := strings.TrimSpace(kv[0])
				value := strings.TrimSpace(kv[1])

				chipPtr := p.getCurrentChip()
				if chipPtr == nil {
					return nil, fmt.Errorf("internal error: parsingFlags true but no current chip")
				}

				switch key {
				case "clockSel":
					switch value {
					case "0":
						chipPtr.PAL = false
					case "1":
						chipPtr.PAL = true
					default:
						p.addWarning("clock %s for chip number %d is neither NTSC (0) nor PAL (1). Defaulting to PAL", value, len(p.song.SoundChips))
						chipPtr.PAL = true
					}
				case "chipType", "keyPriority", "no1EUpdate", "multiplyRel", "macroRace", "initResetTime":
					// Ignore; not important.
				default:
					p.addWarning("unknown chip flag in Sound Chips section: %s", key)
				}
				continue
			} else {
				if isChipHeader(trimmedLine) {
					if st.Ctx["parsingChip"] {
						if st.Ctx["parsingFlags"] {
							p.addWarning("didn't finish parsing chip properly in Sound Chips section. This could be because there were no flags present on a chip")
						}
						if missing := missingFields(st, "parsingChip", "parsingFlags"); len(missing) > 0 {
							return nil, p.fatalf("missing fields in Sound Chips section: %s", strings.Join(missing, ", "))
						}
						// Fall through to start a new chip
					}

					st.Ctx["parsingChip"] = true
					st.Ctx["parsingFlags"] = false
					p.startChip(trimmedLine)
					continue
				} else if trimmedLine == "```" {
					st.Ctx["parsingFlags"] = true
					continue
				}
				le, err := parseListElement(trimmedLine)
				if err != nil {
					return nil, p.fatalf("error parsing list element when extracting sound chips: %s", trimmedLine)
				}

				chipPtr := p.getCurrentChip()
				if chipPtr == nil {
					return nil, p.fatalf("no current chip while parsing")
				}

				switch le.key {
				case "id":
					st.Ctx["id"] = true
				case "flags":
					st.Ctx["flags"] = true
				case "volume", "panning", "front/rear":
					// Ignore; not important.
				default:
					p.addWarning("unknown option in Sound Chips section: %s", le.key)
				}
			}

		case "instruments/wavetables/samples":
			if trimmedLine == "# Subsongs" {
				p.setState("subsongs", &boolMap{
					Ctx: map[string]bool{
						"parsingSubsong":  false,
						"parsingMetadata": false,
						"parsingOrders":   false,
						"parsingRows":     false,
						"tickRate":        false,
						"speeds":          false,
						"patternLength":   false,
					},
				})

				p.state = "subsongs"
				continue
			}
			// Everything else up to the subsongs is ignored.

		case "subsongs":
			st, _ := getState[*boolMap](p, "subsongs")

			var subsongName string
			newIdx := len(p.song.Subsongs)
			if strings.HasPrefix(trimmedLine, "## ") {
				if trimmedLine == "## Patterns" {
					if st.Ctx["parsingOrders"] {
						st.Ctx["parsingOrders"] = false
						st.Ctx["parsingRows"] = true
					}
					// Do nothing else because we don't care about orders.
					continue
				}

				validLine := true

				for { // Scope to break out of if the syntax isn't valid.
					splitIdx := strings.Index(trimmedLine, ":")
					if splitIdx == -1 {
						validLine = false
						break
					}

					key := strings.TrimSpace(trimmedLine[:splitIdx])
					subsongName = strings.TrimSpace(trimmedLine[splitIdx+1:])

					var found bool
					key, found = strings.CutPrefix(key, "## ")
					if !found {
						validLine = false
						break
					}

					claimedIdx, err := strconv.Atoi(key)
					if err != nil {
						validLine = false
						break
					}
					if claimedIdx != newIdx { // Make sure the subsong index is what we expect.
						p.addWarning("expected subsong index %d, got index %d instead", newIdx, claimedIdx)
					}

					break
				}

				if !validLine {
					p.addWarning("unexpected text found in file when looking for subsong start: %s", trimmedLine)
					continue
				}

				if st.Ctx["parsingSubsong"] == st.Ctx["parsingRows"] {
					if st.Ctx["parsingSubsong"] {
						if missing := missingFields(st, "parsingSubsong", "parsingMetadata", "parsingOrders", "parsingRows"); len(missing) > 0 {
							return nil, p.fatalf("missing fields in Subsongs section: %s", strings.Join(missing, ", "))
						}
						// Fall through to start a new subsong.
					}

					st.Ctx["parsingSubsong"] = true
					st.Ctx["parsingMetadata"] = true
					st.Ctx["parsingOrders"] = false
					st.Ctx["parsingRows"] = false

					p.song.Subsongs = append(p.song.Subsongs, &Subsong{
						Index:    newIdx,
						Name:     subsongName,
						TickRate: 50,
						Speeds:   []uint8{3},
					})
					continue
				}
				if st.Ctx["parsingMetadata"] {
					return nil, p.fatalf("didn't finish parsing subsong metadata properly in Subsongs section")
				}
				if st.Ctx["parsingOrders"] {
					return nil, p.fatalf("didn't finish parsing subsong orders properly in Subsongs section")
				}
				p.addWarning("unexpected text found in file when parsing subsong id %d: %s", newIdx-1, trimmedLine)
				continue
			}

			if trimmedLine == "# Subsongs" { // Section header
				continue
			}

			if st.Ctx["parsingRows"] {
				if strings.HasPrefix(trimmedLine, "----- ORDER") { // Order header
					continue
				}
				fields := strings.FieldsFunc(trimmedLine, func(r rune) bool {
					return r == '|'
				})

				subsongPtr := p.getCurrentSubsong()
				if subsongPtr == nil {
					return nil, p.fatalf("no current subsong while parsing")
				}
				row := Row{
					Index: len(subsongPtr.Rows),
				}

				for i, field := range fields {
					if i == 0 { // Ignore address values.
						continue
					}
					channel := Channel(i - 1)
					if channel >= sidChannels {
						if !ignoredColumns {
							p.addWarning("rows have more than %d channels, only the first %d are rendered", sidChannels, sidChannels)
							ignoredColumns = true
						}
						break
					}

					note, effects, unsupported, err := parseNote(field)
					if err != nil {
						p.addWarning("error parsing note in channel %d: %v", channel, err)
						row.Notes = append(row.Notes, Note{Channel: channel})
						continue
					}
					for _, u := range unsupported {
						p.addWarning("unsupported effect %s in channel %d ignored", u, channel)
					}
					note.Channel = channel
					for i := range effects {
						effects[i].Channel = channel
					}

					row.Notes = append(row.Notes, note)
					row.Effects = append(row.Effects, effects...)
				}

				subsongPtr.Rows = append(subsongPtr.Rows, row)
				continue
			}

			if st.Ctx["parsingMetadata"] {
				if trimmedLine == "orders:" {
					st.Ctx["parsingMetadata"] = false
					st.Ctx["parsingOrders"] = true
					continue
				}

				le, err := parseListElement(trimmedLine)
				if err != nil {
					return nil, p.fatalf("error parsing list element when extracting subsong metadata: %s", trimmedLine)
				}

				subsongPtr := p.getCurrentSubsong()
				if subsongPtr == nil {
					return nil, p.fatalf("no current subsong while parsing")
				}

				switch le.key {
				case "tick rate":
					st.Ctx["tickRate"] = true
					tickRate, err := strconv.ParseFloat(le.value, 64)
					if err != nil || tickRate <= 0 {
						return nil, p.fatalf("error converting song tick rate in text file to a number: %s", le.value)
					}
					subsongPtr.TickRate = tickRate
				case "speeds":
					st.Ctx["speeds"] = true
					speeds, err := p.parseSpeedsList(le.value)
					if err != nil {
						return nil, p.fatalf("error when parsing speeds: %v", err)
					}
					subsongPtr.Speeds = speeds
				case "time base":
					timeBase, err := strconv.Atoi(le.value)
					if err != nil {
						return nil, p.fatalf("error converting song time base in text file to a number: %s", le.value)
					}
					subsongPtr.TimeBase = timeBase
				case "pattern length":
					st.Ctx["patternLength"] = true
					patternLength, err := strconv.ParseUint(le.value, 10, 8)
					if err != nil || patternLength == 0 {
						return nil, p.fatalf("error converting pattern length in text file to a number: %s", le.value)
					}
					subsongPtr.PatternLength = uint8(patternLength)
				case "virtual tempo":
					// Ignore; not important.
				default:
					p.addWarning("unknown option in Subsongs section: %s", le.key)
				}
			}
			// Order lines are ignored.

		default:
			spew.Dump(p.song)
			return nil, p.fatalf("unknown parser state: %s", p.state)
		}

	}

	if err := p.scanner.Err(); err != nil {
		return nil, p.fatalf("error while reading file: %v", err)
	}

	fileComplete := false
	if p.state == "subsongs" {
		st, _ := getState[*boolMap](p, "subsongs")
		if st.Ctx["parsingSubsong"] && st.Ctx["parsingRows"] {
			// This should mean we've finished parsing the file and it wasn't cut off at the end.
			// Not the most rigorous check because the song could totally have no notes in it,
			// but we can check for that elsewhere in the code.
			fileComplete = true
		}
	}
	if !fileComplete {
		return nil, p.fatalf("unexpected EOF")
	}

	return &ParseResult{
		Song:     &p.song,
		Warnings: p.warnings,
	}, nil
}

// Parse reads the whole text export and returns the song, ready to be rendered.
func (p *Parser) Parse() (*Song, error) {
	result, err := p.parseInternal()
	if err != nil {
		return nil, err
	}

	if len(result.Warnings) > 0 {
		p.logger.Println("Warnings produced while parsing file:")
		for _, warning := range result.Warnings {
			p.logger.Printf("%v", warning)
		}
	}

	p.logger.Printf("Parsed %d subsongs", len(result.Song.Subsongs))
	return result.Song, nil
}

// Warnings returns the non-fatal problems found while parsing.
func (p *Parser) Warnings() []ParseWarning {
	return p.warnings
}

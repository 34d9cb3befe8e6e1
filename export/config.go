package export

// Config is the resolved export selection. It is read only during an export.
type Config struct {
	StartSong int  // 1-based starting subsong.
	ExportAll bool // Export every subsong instead of only StartSong.

	// Per-subsong inclusion, sized to the subsong count. Only consulted when ExportAll is set.
	Selected []bool

	UseCIA bool // Ask the host to drive the player from a CIA timer.
	PAL    bool // 50 Hz (PAL) instead of 60 Hz (NTSC) rendering.
}

// DefaultConfig returns the configuration used when nothing is changed:
// subsong 1 only, PAL, vertical blank timing.
func DefaultConfig() Config {
	return Config{
		StartSong: 1,
		PAL:       true,
	}
}

// Resize makes Selected hold exactly n entries. New entries are selected.
func (c *Config) Resize(n int) {
	n = max(n, 0)
	for len(c.Selected) < n {
		c.Selected = append(c.Selected, true)
	}
	c.Selected = c.Selected[:n]
}

// Range returns the 0-based subsongs first..last (inclusive) covered by an export
// of a composition with count subsongs.
func (c *Config) Range(count int) (first, last int) {
	count = max(count, 1)
	if c.ExportAll {
		return 0, count - 1
	}
	start := clampStart(c.StartSong, count) - 1
	return start, start
}

// includes returns whether subsong s (0-based) gets encoded.
func (c *Config) includes(s int, count int) bool {
	if !c.ExportAll {
		return s == clampStart(c.StartSong, count)-1
	}
	if s < len(c.Selected) {
		return c.Selected[s]
	}
	// Subsongs the selection was never sized for count as selected, like a freshly resized list.
	return true
}

// clampStart returns the 1-based start song forced into 1..count.
func clampStart(start int, count int) int {
	return min(max(start, 1), max(count, 1))
}

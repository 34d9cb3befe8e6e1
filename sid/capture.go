package sid

// Chip identifies the sound chip a register write was sent to.
type Chip uint8

const (
	ChipNone Chip = iota
	ChipSID       // MOS 6581/8580.
	ChipOther     // Any other chip in the composition. Writes to it are never captured.
)

// The SID register window as seen from the 6502.
const (
	RegisterBase  uint16 = 0xD400
	RegisterCount        = 25 // $D400-$D418.
)

// A single register write captured while a subsong was being rendered.
type RegisterWrite struct {
	Frame    uint32 // The frame (player call) in which the write happened.
	Register uint8  // Register index relative to RegisterBase (0-24).
	Value    byte
}

// WriteLog is the ordered list of writes captured for exactly one subsong.
type WriteLog []RegisterWrite

// Recorder receives every register write a renderer produces, in time order.
type Recorder interface {
	Record(chip Chip, address uint16, value byte, frame uint32)
}

// Capture is a Recorder which keeps the writes that land in the SID register window.
type Capture struct {
	log WriteLog
}

// NewCapture returns an empty capture.
func NewCapture() *Capture {
	return &Capture{}
}

// Record implements the Recorder interface.
// Writes to other chips or outside $D400-$D418 are dropped.
func (c *Capture) Record(chip Chip, address uint16, value byte, frame uint32) {
	if chip != ChipSID {
		return
	}
	if address < RegisterBase || address >= RegisterBase+RegisterCount {
		return
	}
	c.log = append(c.log, RegisterWrite{
		Frame:    frame,
		Register: uint8(address - RegisterBase),
		Value:    value,
	})
}

// Reset empties the capture so it can be used for another rendering pass.
func (c *Capture) Reset() {
	c.log = c.log[:0]
}

// Log returns the writes captured so far.
func (c *Capture) Log() WriteLog {
	return c.log
}

// Len returns the number of captured writes.
func (c *Capture) Len() int {
	return len(c.log)
}

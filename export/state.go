package export

import "fmt"

// State is a step of an export.
type State int

const (
	Idle State = iota
	HeaderWritten
	PlaceholderTableWritten
	EncodingSubsongs
	TablePatched
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HeaderWritten:
		return "header written"
	case PlaceholderTableWritten:
		return "placeholder table written"
	case EncodingSubsongs:
		return "encoding subsongs"
	case TablePatched:
		return "table patched"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

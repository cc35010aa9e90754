package core

import "fmt"

// Mode selects how an analysis search is limited.
type Mode int

const (
	ModeDepth Mode = iota
	ModeTime
	ModeClock
)

func (m Mode) String() string {
	switch m {
	case ModeDepth:
		return "depth"
	case ModeTime:
		return "time"
	case ModeClock:
		return "clock"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "depth", "":
		return ModeDepth, nil
	case "time":
		return ModeTime, nil
	case "clock":
		return ModeClock, nil
	default:
		return 0, fmt.Errorf("unknown analysis mode %q", s)
	}
}

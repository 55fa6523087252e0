package capabilities

import "strings"

// Mode selects how the stream endpoint serves a record.
type Mode string

// Player modes.
const (
	ModeAuto     Mode = "auto"
	ModeBinary   Mode = "binary"
	ModeRedirect Mode = "redirect"
)

// ParseMode is case-insensitive and falls back to ModeAuto.
func ParseMode(value string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(value))); m {
	case ModeBinary, ModeRedirect:
		return m
	default:
		return ModeAuto
	}
}

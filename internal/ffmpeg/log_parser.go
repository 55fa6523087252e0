package ffmpeg

import "strings"

// ParseLogLevel splits an ffmpeg stderr line written with
// "-loglevel level+..." into its level and message. Lines look like
// "[error] message" or "[hls @ 0x55d0] [warning] message"; the component
// prefix is kept in the message. Unprefixed lines are "info".
func ParseLogLevel(line string) (level, msg string) {
	if !strings.HasPrefix(line, "[") {
		return "info", line
	}
	first, rest, ok := strings.Cut(line[1:], "] ")
	if !ok {
		return "info", line
	}
	if isLogLevel(first) {
		return first, rest
	}

	if strings.HasPrefix(rest, "[") {
		if second, tail, ok := strings.Cut(rest[1:], "] "); ok && isLogLevel(second) {
			return second, "[" + first + "] " + tail
		}
	}
	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

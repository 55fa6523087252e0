package process

import (
	"strings"

	"github.com/catatau597/tubewranglerr/internal/ffmpeg"
)

// LogParser extracts a level and message from one stderr line.
type LogParser func(line string) (level, msg string)

// ParserFor returns the stderr parser for an engine name.
func ParserFor(engine string) LogParser {
	switch engine {
	case "ffmpeg":
		return ffmpeg.ParseLogLevel
	case "streamlink":
		return ParseStreamlinkLine
	case "yt-dlp":
		return ParseYtDlpLine
	default:
		return nil
	}
}

// ParseStreamlinkLine handles "[cli][info] message" and
// "[stream.hls][warning] message". A bare "error: ..." is an error.
func ParseStreamlinkLine(line string) (level, msg string) {
	if rest, ok := strings.CutPrefix(line, "error: "); ok {
		return "error", rest
	}
	if !strings.HasPrefix(line, "[") {
		return "info", line
	}
	component, rest, ok := strings.Cut(line[1:], "]")
	if !ok || !strings.HasPrefix(rest, "[") {
		return "info", line
	}
	lvl, msg, ok := strings.Cut(rest[1:], "] ")
	if !ok {
		return "info", line
	}
	return lvl, "[" + component + "] " + msg
}

// ParseYtDlpLine maps yt-dlp's "ERROR:" and "WARNING:" prefixes and demotes
// progress and debug lines.
func ParseYtDlpLine(line string) (level, msg string) {
	switch {
	case strings.HasPrefix(line, "ERROR: "):
		return "error", strings.TrimPrefix(line, "ERROR: ")
	case strings.HasPrefix(line, "WARNING: "):
		return "warning", strings.TrimPrefix(line, "WARNING: ")
	case strings.HasPrefix(line, "[debug] "):
		return "debug", strings.TrimPrefix(line, "[debug] ")
	case strings.HasPrefix(line, "[download]"):
		return "debug", line
	}
	// yt-dlp passes the ffmpeg downloader's stderr through.
	if strings.HasPrefix(line, "[") {
		if lvl, msg := ffmpeg.ParseLogLevel(line); lvl != "info" {
			return lvl, msg
		}
	}
	return "info", line
}

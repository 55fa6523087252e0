package ffmpeg

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder output geometry.
const (
	PlaceholderWidth  = 1280
	PlaceholderHeight = 720
	PlaceholderFPS    = 25
)

// DateLayout renders the scheduled start on the placeholder card.
const DateLayout = "02/01/2006 15:04"

// PlaceholderParams describes the still-image card shown for a broadcast
// that has not started.
type PlaceholderParams struct {
	// ImageURL is the still to loop. Empty renders a plain black card.
	ImageURL  string
	Title     string
	Scheduled *time.Time
	// Location renders Scheduled. Nil means UTC.
	Location  *time.Location
	FontFile  string
	UserAgent string
}

// DateLine is the second overlay line, or "" when nothing is scheduled.
func (p PlaceholderParams) DateLine() string {
	if p.Scheduled == nil {
		return ""
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return "Início: " + p.Scheduled.In(loc).Format(DateLayout)
}

// BuildPlaceholderArgs returns the ffmpeg argv (without the binary) that
// loops the card, overlays title and date, adds silent audio and writes
// MPEG-TS to stdout.
func BuildPlaceholderArgs(p PlaceholderParams) []string {
	args := []string{"-hide_banner", "-loglevel", "level+warning", "-re"}

	video := fmt.Sprintf("[0:v]fps=%d,loop=-1:1:0,", PlaceholderFPS)
	if p.ImageURL == "" {
		args = append(args, "-f", "lavfi", "-i",
			fmt.Sprintf("color=c=black:s=%dx%d:r=%d", PlaceholderWidth, PlaceholderHeight, PlaceholderFPS))
		video = "[0:v]"
	} else {
		if p.UserAgent != "" && isHTTP(p.ImageURL) {
			args = append(args, "-user_agent", p.UserAgent)
		}
		args = append(args, "-i", p.ImageURL)
	}
	args = append(args, "-f", "lavfi", "-i", "anullsrc=r=44100:cl=stereo")

	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", PlaceholderWidth, PlaceholderHeight),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", PlaceholderWidth, PlaceholderHeight),
		"format=yuv420p",
	}
	if p.Title != "" {
		filters = append(filters, drawtext(p.FontFile, p.Title, 48, "h-100"))
	}
	if line := p.DateLine(); line != "" {
		filters = append(filters, drawtext(p.FontFile, line, 36, "h-50"))
	}

	args = append(args,
		"-filter_complex", video+strings.Join(filters, ",")+"[v]",
		"-map", "[v]", "-map", "1:a",
		"-c:v", "libx264", "-preset", "ultrafast", "-tune", "stillimage", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-shortest",
		"-f", "mpegts", "pipe:1",
	)
	return args
}

func drawtext(font, text string, size int, y string) string {
	var sb strings.Builder
	sb.WriteString("drawtext=")
	if font != "" {
		sb.WriteString("fontfile=" + EscapeFilterText(font) + ":")
	}
	fmt.Fprintf(&sb, "text=%s:x=(w-text_w)/2:y=%s:fontsize=%d:fontcolor=white:borderw=2:bordercolor=black@0.8",
		EscapeDrawtextText(text), y, size)
	return sb.String()
}

// A value inside -filter_complex is unescaped twice before the filter sees
// it: once by the graph parser (special: \ ' [ ] , ;) and once by the
// option parser (special: \ ' :). drawtext text is unescaped a third time
// by drawtext itself (special: \ %).
var (
	drawtextEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, "\n", " ", "\r", " ")
	optionEscaper   = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper    = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
	newlineEscaper  = strings.NewReplacer("\n", " ", "\r", " ")
)

// EscapeFilterText escapes s as an option value of a filter inside a
// filter graph, e.g. a drawtext fontfile.
func EscapeFilterText(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(newlineEscaper.Replace(s)))
}

// EscapeDrawtextText escapes s as the text option of drawtext inside a
// filter graph, so it is rendered literally.
func EscapeDrawtextText(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(drawtextEscaper.Replace(s)))
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

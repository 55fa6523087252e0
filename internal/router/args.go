package router

// Format selectors for yt-dlp.
const (
	LiveFormat     = "best"
	RecordedFormat = "bv*+ba/best"
)

// ytDlpReconnect is handed to the ffmpeg downloader so a dropped HLS
// connection is retried instead of ending the stream.
const ytDlpReconnect = "ffmpeg_i:-reconnect 1 -reconnect_streamed 1 -reconnect_on_network_error 1 -reconnect_delay_max 5"

// BuildStreamlinkArgs builds the streamlink argv for a live URL. Cookies
// from cookiesFile that apply to the URL's host are sent as --http-cookie
// entries since streamlink cannot read a cookie jar itself.
func BuildStreamlinkArgs(watchURL, userAgent, cookiesFile string) []string {
	args := []string{"--stdout", "--hls-live-restart", "--config", "/dev/null", "--no-plugin-sideloading"}
	if userAgent != "" {
		args = append(args, "--http-header", "User-Agent="+userAgent)
	}
	if cookiesFile != "" {
		for _, c := range CookiesForURL(cookiesFile, watchURL) {
			args = append(args, "--http-cookie", c.Name+"="+c.Value)
		}
	}
	return append(args, watchURL, "best")
}

// BuildYtDlpArgs builds the yt-dlp argv. live selects the progressive
// "best" format; recorded broadcasts merge the best video and audio. Both
// go through the ffmpeg downloader with serial HLS fragments muxed as
// MPEG-TS to stdout.
func BuildYtDlpArgs(watchURL string, live bool, userAgent, cookiesFile string) []string {
	format := RecordedFormat
	if live {
		format = LiveFormat
	}

	args := []string{
		"-f", format,
		"--downloader", "default:ffmpeg",
		"--downloader", "m3u8:ffmpeg",
		"--concurrent-fragments", "1",
		"--hls-use-mpegts",
		"--downloader-args", ytDlpReconnect,
		"--retries", "10",
		"--fragment-retries", "10",
		"--no-part",
		"--no-playlist",
		"--quiet",
		"--no-warnings",
	}
	if userAgent != "" {
		args = append(args, "--user-agent", userAgent)
	}
	if cookiesFile != "" {
		args = append(args, "--cookies", cookiesFile)
	}
	return append(args, "-o", "-", watchURL)
}

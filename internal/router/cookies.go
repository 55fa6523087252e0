package router

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/catatau597/tubewranglerr/internal/config"
)

// GenericCookiesFile is used when no per-domain file matches.
const GenericCookiesFile = "cookies.txt"

// domainCookieFiles maps a site's registrable domain to the cookie file an
// operator exports for it into the cookies directory.
var domainCookieFiles = map[string]string{
	"youtube.com":   "youtube.txt",
	"youtu.be":      "youtube.txt",
	"twitch.tv":     "twitch.txt",
	"kick.com":      "kick.txt",
	"facebook.com":  "facebook.txt",
	"instagram.com": "instagram.txt",
	"tiktok.com":    "tiktok.txt",
	"twitter.com":   "twitter.txt",
	"x.com":         "twitter.txt",
}

// CookieFile picks the cookie jar for watchURL: the per-domain file for
// its host, then STREAM_COOKIES_PATH, then the generic file. Only files
// that exist are returned; "" means no cookies.
func CookieFile(watchURL string, s config.Settings) string {
	dir := s.CookiesDir
	if dir == "" {
		dir = config.DefaultCookiesDir
	}

	if host := hostOf(watchURL); host != "" {
		for domain, name := range domainCookieFiles {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				if p := filepath.Join(dir, name); fileExists(p) {
					return p
				}
				break
			}
		}
	}

	if s.StreamCookiesPath != "" && fileExists(s.StreamCookiesPath) {
		return s.StreamCookiesPath
	}
	if p := filepath.Join(dir, GenericCookiesFile); fileExists(p) {
		return p
	}
	return ""
}

// Cookie is one Netscape cookie-jar entry.
type Cookie struct {
	Domain string
	Path   string
	Name   string
	Value  string
}

// CookiesForURL reads a Netscape cookie jar and keeps the entries whose
// domain covers watchURL's host. Unreadable files yield nothing.
func CookiesForURL(path, watchURL string) []Cookie {
	host := hostOf(watchURL)
	if host == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		c, ok := parseCookieLine(scanner.Text())
		if !ok {
			continue
		}
		domain := strings.TrimPrefix(c.Domain, ".")
		if host == domain || strings.HasSuffix(host, "."+domain) {
			out = append(out, c)
		}
	}
	return out
}

// parseCookieLine parses "domain flag path secure expiry name value".
// Comment lines are skipped except the "#HttpOnly_" domain prefix.
func parseCookieLine(line string) (Cookie, bool) {
	line = strings.TrimRight(line, "\r")
	if rest, ok := strings.CutPrefix(line, "#HttpOnly_"); ok {
		line = rest
	} else if line == "" || strings.HasPrefix(line, "#") {
		return Cookie{}, false
	}
	fields := strings.Split(line, "\t")
	if len(fields) != 7 || fields[5] == "" {
		return Cookie{}, false
	}
	return Cookie{Domain: fields[0], Path: fields[2], Name: fields[5], Value: fields[6]}, true
}

// hostOf returns the lower-cased host without "www." or "m.".
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

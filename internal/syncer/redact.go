package syncer

import "regexp"

// Credential-shaped substrings are stripped from every message before it
// reaches the run log or the logger. TikTok access tokens start with
// "act." and refresh tokens with "rft.".
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`act\.[A-Za-z0-9._\-!*'()]+`),
	regexp.MustCompile(`rft\.[A-Za-z0-9._\-!*'()]+`),
	regexp.MustCompile(`(?i)(access_token|refresh_token|client_secret)=[^&\s"']+`),
	regexp.MustCompile(`(?i)"(access_token|refresh_token|client_secret)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/\-]+=*`),
}

// Redact replaces credential-shaped substrings with a fixed marker.
func Redact(s string) string {
	for _, p := range redactPatterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

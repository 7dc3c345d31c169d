package interactive

import "strings"

const escape = '\x1b'

// StripANSI removes CSI escape sequences: an ESC followed by '[' is dropped together
// with everything up to and including the next ASCII letter. Any other character,
// a lone ESC included, passes through unchanged.
func StripANSI(s string) string {
	if strings.IndexByte(s, escape) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == escape && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && !isASCIILetter(s[j]) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// codePromptMarker is the code prompt. The CLI can print it in the same chunk as the URL.
const codePromptMarker = "paste code here if prompted"

// screenMarkers is matched in order against lowercased output; the first hit wins.
var screenMarkers = []struct {
	marker string
	kind   LoginKind
}{
	{"dark mode", DarkMode},
	{"select login method", SelectLoginMethod},
	{"use the url below to sign in", ProvideURL},
	{codePromptMarker, WaitingForCode},
	{"login successful", LoginSuccessful},
	{"security notes", SecurityNotes},
	{"do you trust the files in this folder", TrustFiles},
	{"press enter to retry", PressEnterToRetry},
}

func showsCodePrompt(text string) bool {
	return strings.Contains(strings.ToLower(text), codePromptMarker)
}

// Classify maps cleaned terminal output to the login screen it shows.
// Output that matches no screen classifies as DarkMode.
func Classify(text string) LoginState {
	state, _ := classify(text)
	return state
}

// classify also reports whether a marker matched, so the driver can tell real
// screens from the fallback.
func classify(text string) (LoginState, bool) {
	lower := strings.ToLower(text)
	for _, m := range screenMarkers {
		if !strings.Contains(lower, m.marker) {
			continue
		}
		if m.kind == ProvideURL {
			return LoginState{Kind: ProvideURL, URL: extractURL(text)}, true
		}
		return LoginState{Kind: m.kind}, true
	}
	return LoginState{Kind: DarkMode}, false
}

// extractURL returns the first line that is an https URL on its own, else the first
// https:// run up to whitespace, else "".
func extractURL(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "https://") {
			if end := strings.IndexFunc(trimmed, isSpace); end >= 0 {
				return trimmed[:end]
			}
			return trimmed
		}
	}
	idx := strings.Index(text, "https://")
	if idx < 0 {
		return ""
	}
	rest := text[idx:]
	if end := strings.IndexFunc(rest, isSpace); end >= 0 {
		return rest[:end]
	}
	return rest
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

package session

import "strings"

const (
	minCodeLength       = 6
	maxCodeLength       = 128
	minCodeAlphanumeric = 6
	minCodeHalfLength   = 20
)

// LooksLikeAuthCode reports whether text, after trimming, has the shape of a pasted
// authorization code: 6 to 128 characters from [A-Za-z0-9-_.#] with at least six
// alphanumerics. A '#' must split the text into exactly two parts of 20 or more
// characters each, the code#state form issued by the Claude callback page.
func LooksLikeAuthCode(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < minCodeLength || len(text) > maxCodeLength {
		return false
	}

	alphanumeric := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			alphanumeric++
		case c == '-' || c == '_' || c == '.' || c == '#':
		default:
			return false
		}
	}
	if alphanumeric < minCodeAlphanumeric {
		return false
	}

	if strings.Contains(text, "#") {
		parts := strings.Split(text, "#")
		if len(parts) != 2 {
			return false
		}
		if len(parts[0]) < minCodeHalfLength || len(parts[1]) < minCodeHalfLength {
			return false
		}
	}
	return true
}

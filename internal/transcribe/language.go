package transcribe

import "strings"

// SanitizeLanguage normalizes a language preference. Empty and "auto" (any
// case) mean no explicit language and return ""; anything else is trimmed
// and lower-cased.
func SanitizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "auto" {
		return ""
	}
	return lang
}

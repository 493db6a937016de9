package utils

import "strings"

const (
	MaxInputLength  = 2000
	MaxReasonLength = 512
)

var stripChars = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "")

// SanitizeInput strips angle brackets and quotes, trims, and truncates to
// MaxInputLength runes.
func SanitizeInput(input string) string {
	return SanitizeLimit(input, MaxInputLength)
}

func SanitizeLimit(input string, limit int) string {
	cleaned := strings.TrimSpace(stripChars.Replace(input))
	return truncateRunes(cleaned, limit)
}

// SanitizeReason prepares a moderator-supplied reason for the platform audit
// log, which rejects reasons longer than 512 characters.
func SanitizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "No reason provided"
	}
	return truncateRunes(reason, MaxReasonLength)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

package utils

import (
	"strings"
	"testing"
)

func TestSanitizeInput(t *testing.T) {
	got := SanitizeInput(`  <script>alert("x")</script> it's  `)
	if got != "scriptalert(x)/script its" {
		t.Fatalf("unexpected sanitized value: %q", got)
	}
}

func TestSanitizeInputTruncates(t *testing.T) {
	got := SanitizeInput(strings.Repeat("é", MaxInputLength+10))
	if n := len([]rune(got)); n != MaxInputLength {
		t.Fatalf("expected %d runes, got %d", MaxInputLength, n)
	}
}

func TestSanitizeReason(t *testing.T) {
	if got := SanitizeReason("   "); got != "No reason provided" {
		t.Fatalf("unexpected default reason: %q", got)
	}
	if got := SanitizeReason(strings.Repeat("a", 600)); len(got) != MaxReasonLength {
		t.Fatalf("expected reason capped at %d, got %d", MaxReasonLength, len(got))
	}
}

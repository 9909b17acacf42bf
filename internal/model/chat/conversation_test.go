package chat

import (
	"strings"
	"testing"
)

func TestTitleFrom(t *testing.T) {
	if got := TitleFrom("   "); got != "New Conversation" {
		t.Fatalf("expected default title, got %q", got)
	}
	if got := TitleFrom(" hi there "); got != "hi there" {
		t.Fatalf("expected trimmed title, got %q", got)
	}

	long := strings.Repeat("é", 80)
	if got := TitleFrom(long); len([]rune(got)) != 60 {
		t.Fatalf("expected 60 runes, got %d", len([]rune(got)))
	}
}
